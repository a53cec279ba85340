package detect

import (
	"net/http"

	"github.com/gin-gonic/gin/binding"
)

// CollectBody is the JSON body posted by the tracker script.
type CollectBody struct {
	Type    string   `json:"type"`
	Payload *Payload `json:"payload"`
}

// Payload describes one tracked pageview or event.
type Payload struct {
	Website  string         `json:"website"`
	Hostname string         `json:"hostname"`
	Screen   string         `json:"screen"`
	Language string         `json:"language"`
	URL      string         `json:"url"`
	Referrer string         `json:"referrer"`
	Title    string         `json:"title"`
	Name     string         `json:"name"`
	Data     map[string]any `json:"data,omitempty"`
}

// ReadCollectBody decodes the collect body. An absent or unparsable body, or
// one without a payload, yields nil.
func ReadCollectBody(r *http.Request) *CollectBody {
	if r == nil || r.Body == nil {
		return nil
	}

	var body CollectBody
	if err := binding.JSON.Bind(r, &body); err != nil {
		return nil
	}
	if body.Payload == nil {
		return nil
	}
	return &body
}
