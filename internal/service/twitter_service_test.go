package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/models"
)

func newTwitterFixture(t *testing.T, api, upload http.Handler) *twitterService {
	t.Helper()

	svc := NewTwitterService(config.Config{}, &fakeAccountRepo{}, &fakeTokenService{token: "tok"}).(*twitterService)

	if api != nil {
		ts := httptest.NewServer(api)
		t.Cleanup(ts.Close)
		svc.apiURL = ts.URL
	}
	if upload != nil {
		ts := httptest.NewServer(upload)
		t.Cleanup(ts.Close)
		svc.uploadURL = ts.URL
	}

	return svc
}

// jpegServer serves bytes that sniff as image/jpeg.
func jpegServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestPublishPostTextOnly(t *testing.T) {
	var gotBody map[string]interface{}
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"tw-1","text":"hi"}}`))
	})
	upload := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upload endpoint must not be called without media")
	})

	svc := newTwitterFixture(t, api, upload)

	post := &models.Post{Caption: "hi"}
	id, err := svc.PublishPost(context.Background(), post, &models.Account{})
	if err != nil {
		t.Fatalf("PublishPost: %v", err)
	}
	if id != "tw-1" {
		t.Errorf("tweet id = %q, want tw-1", id)
	}
	if _, ok := gotBody["media"]; ok {
		t.Error("text-only tweet must not carry media ids")
	}
}

func TestPublishPostWithMedia(t *testing.T) {
	media := jpegServer(t)

	var commands []string
	upload := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(10 << 20)
		command := r.FormValue("command")
		commands = append(commands, command)

		switch command {
		case "INIT":
			w.Write([]byte(`{"media_id":101,"media_id_string":"101"}`))
		case "APPEND":
			if r.FormValue("segment_index") != "0" {
				t.Errorf("segment_index = %q, want 0", r.FormValue("segment_index"))
			}
			w.WriteHeader(http.StatusNoContent)
		case "FINALIZE":
			if r.FormValue("media_id") != "101" {
				t.Errorf("finalize media_id = %q, want 101", r.FormValue("media_id"))
			}
			w.Write([]byte(`{"media_id_string":"101","processing_info":{"state":"pending","check_after_secs":1}}`))
		default:
			t.Errorf("unknown command %q", command)
		}
	})

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		mediaField, ok := req["media"].(map[string]interface{})
		if !ok {
			t.Error("tweet request missing media")
		} else if ids, _ := mediaField["media_ids"].([]interface{}); len(ids) != 1 || ids[0] != "101" {
			t.Errorf("media_ids = %v, want [101]", ids)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"tw-2","text":"cap"}}`))
	})

	svc := newTwitterFixture(t, api, upload)

	post := &models.Post{Caption: "cap", MediaURL: media.URL, MediaType: models.MediaTypeImage}
	id, err := svc.PublishPost(context.Background(), post, &models.Account{})
	if err != nil {
		t.Fatalf("PublishPost: %v", err)
	}
	if id != "tw-2" {
		t.Errorf("tweet id = %q, want tw-2", id)
	}

	want := []string{"INIT", "APPEND", "FINALIZE"}
	if len(commands) != len(want) {
		t.Fatalf("commands = %v, want %v", commands, want)
	}
	for i := range want {
		if commands[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, commands[i], want[i])
		}
	}
}

func TestPublishPostCarouselTextOnly(t *testing.T) {
	var gotBody map[string]interface{}
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"tw-3","text":"album"}}`))
	})
	upload := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("carousel cover must not be uploaded")
	})

	svc := newTwitterFixture(t, api, upload)

	post := &models.Post{Caption: "album", MediaURL: "https://cdn.example/cover.jpg", MediaType: models.MediaTypeCarousel}
	id, err := svc.PublishPost(context.Background(), post, &models.Account{})
	if err != nil {
		t.Fatalf("PublishPost: %v", err)
	}
	if id != "tw-3" {
		t.Errorf("tweet id = %q, want tw-3", id)
	}
	if _, ok := gotBody["media"]; ok {
		t.Error("carousel tweet must not carry media ids")
	}
}

func TestPublishPostErrorEnvelope(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"message":"You are not allowed to create a Tweet with duplicate content."}]}`))
	})

	svc := newTwitterFixture(t, api, nil)

	_, err := svc.PublishPost(context.Background(), &models.Post{Caption: "dup"}, &models.Account{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "duplicate content") {
		t.Errorf("error = %v, want the API message surfaced", err)
	}
}

func TestPublishPostNonJSONResponse(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html><body>Gateway Timeout</body></html>"))
	})

	svc := newTwitterFixture(t, api, nil)

	_, err := svc.PublishPost(context.Background(), &models.Post{Caption: "x"}, &models.Account{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "non-JSON") || !strings.Contains(err.Error(), "Gateway Timeout") {
		t.Errorf("error = %v, want non-JSON with body snippet", err)
	}
}

func TestTruncateCaption(t *testing.T) {
	tests := []struct {
		name    string
		caption string
		want    int
	}{
		{"short", "hello", 5},
		{"exact", strings.Repeat("a", 280), 280},
		{"long", strings.Repeat("a", 300), 280},
		{"long multibyte", strings.Repeat("é", 300), 280},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateCaption(tt.caption)
			if n := len([]rune(got)); n != tt.want {
				t.Errorf("len = %d, want %d", n, tt.want)
			}
		})
	}
}
