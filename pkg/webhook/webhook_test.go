package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/recognition"
	"github.com/stretchr/testify/require"
)

func TestParseURLs(t *testing.T) {
	require.Nil(t, ParseURLs(""))
	require.Equal(t, []string{"http://a", "http://b"}, ParseURLs(" http://a, ,http://b "))
}

func TestNotifierPostsToEveryURL(t *testing.T) {
	var lock sync.Mutex
	var received []recognition.Utterance
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var u recognition.Utterance
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		lock.Lock()
		received = append(received, u)
		lock.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	first := httptest.NewServer(handler)
	defer first.Close()
	second := httptest.NewServer(handler)
	defer second.Close()

	n := NewNotifier([]string{first.URL, second.URL})
	n.OnUtterance(recognition.Utterance{
		Guild:       "G",
		Participant: "A",
		Text:        "fifty",
		Time:        time.Now(),
	})
	n.Wait()

	require.Len(t, received, 2)
	for _, u := range received {
		require.Equal(t, "fifty", u.Text)
		require.Equal(t, "A", u.Participant)
	}
}

func TestNotifierSurvivesFailingHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier([]string{srv.URL})
	require.Error(t, n.post(srv.URL, []byte(`{}`)))

	n.OnUtterance(recognition.Utterance{Text: "x"})
	n.Wait()
}
