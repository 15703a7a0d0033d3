package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/recognition"
	"github.com/labstack/gommon/log"
)

// Notifier posts every recognized utterance as JSON to a list of URLs.
type Notifier struct {
	urls   []string
	client *http.Client
	wg     sync.WaitGroup
}

// ParseURLs splits a comma separated list, ignoring blanks.
func ParseURLs(list string) []string {
	var urls []string
	for _, u := range strings.Split(list, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func NewNotifier(urls []string) *Notifier {
	return &Notifier{
		urls: urls,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (n *Notifier) OnUtterance(u recognition.Utterance) {
	// Marshal to JSON
	body, err := json.Marshal(u)
	if err != nil {
		log.Errorf("error marshalling payload | error: %v, data: %v", err, u)
		return
	}

	// Send data in background
	for _, hook := range n.urls {
		n.wg.Add(1)
		go func(url string) {
			defer n.wg.Done()
			if err := n.post(url, body); err != nil {
				log.Errorf("error reaching webhook | error: %v, url: %s", err, url)
				return
			}
			log.Infof("sent webhook data | url: %s, participant: %s", url, u.Participant)
		}(hook)
	}
}

func (n *Notifier) post(url string, body []byte) error {
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until every post started so far has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
