package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestDebugJoinError(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/sessions", map[string]string{"problem": "x"})
	var sess struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &sess)
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, r, http.MethodGet, "/api/sessions/"+sess.ID+"/", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
		}
		var snap struct {
			Session struct {
				Active bool `json:"active"`
			} `json:"session"`
		}
		json.Unmarshal(rec.Body.Bytes(), &snap)
		if !snap.Session.Active {
			t.Log("finished cleanly")
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout")
}
