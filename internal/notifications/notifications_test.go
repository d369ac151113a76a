package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"mediapipe/internal/asset"
	"mediapipe/internal/config"
)

type recordingSubscriber struct {
	name   string
	err    error
	mu     *sync.Mutex
	order  *[]string
	events []Event
}

func (r *recordingSubscriber) Name() string { return r.name }

func (r *recordingSubscriber) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	*r.order = append(*r.order, r.name)
	r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

type observerFunc func(string, error)

func (f observerFunc) Notification(name string, err error) { f(name, err) }

func sampleAsset(status asset.Status) *asset.Asset {
	a := &asset.Asset{
		ID:             42,
		OwnerID:        7,
		Name:           "beach",
		OriginalName:   "beach.png",
		MIMEType:       "image/png",
		Kind:           asset.KindImage,
		Status:         status,
		CompressedPath: "media/compressed/2024/01/x.jpg",
		Thumbnails:     map[asset.SizeClass]string{asset.SizeMedium: "media/thumbnails/2024/01/m.jpg"},
		Tags:           []asset.Tag{{Name: "Summer", Slug: "summer"}},
	}
	if status == asset.StatusFailed {
		a.ErrorMessage = "fatal stage failure: compression: decode"
	}
	return a
}

func TestNewEventFollowsStatus(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	completed := NewEvent(sampleAsset(asset.StatusCompleted), at)
	if completed.Type != EventCompleted || completed.AssetID != 42 {
		t.Fatalf("unexpected event %+v", completed)
	}
	if completed.Asset.Progress != 100 {
		t.Fatalf("expected snapshot progress 100, got %d", completed.Asset.Progress)
	}
	failed := NewEvent(sampleAsset(asset.StatusFailed), at)
	if failed.Type != EventFailed || failed.Asset.ErrorMessage == "" {
		t.Fatalf("unexpected failed event %+v", failed)
	}
}

func TestEventJSONShape(t *testing.T) {
	event := NewEvent(sampleAsset(asset.StatusCompleted), time.Unix(0, 0))
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "asset.completed" || decoded["asset_id"] != float64(42) {
		t.Fatalf("unexpected envelope: %v", decoded)
	}
	snap, ok := decoded["asset"].(map[string]any)
	if !ok {
		t.Fatalf("expected asset object, got %T", decoded["asset"])
	}
	thumbs, _ := snap["thumbnails"].(map[string]any)
	if thumbs["medium"] == nil || snap["kind"] != "image" {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
	if _, present := snap["error_message"]; present {
		t.Fatal("completed snapshot should omit error_message")
	}
}

func TestPublishDeliversInOrderDespiteFailures(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	first := &recordingSubscriber{name: "first", mu: &mu, order: &order, err: errors.New("endpoint down")}
	second := &recordingSubscriber{name: "second", mu: &mu, order: &order}
	delivered := map[string]bool{}
	n := New(nil, first, nil, second)
	n.SetObserver(observerFunc(func(name string, err error) { delivered[name] = err == nil }))

	err := n.Publish(context.Background(), NewEvent(sampleAsset(asset.StatusCompleted), time.Now()))
	if err == nil || !strings.Contains(err.Error(), "first") {
		t.Fatalf("expected joined error naming first subscriber, got %v", err)
	}
	if strings.Join(order, ",") != "first,second" {
		t.Fatalf("unexpected delivery order %v", order)
	}
	if len(second.events) != 1 {
		t.Fatal("second subscriber should still receive the event")
	}
	if delivered["first"] || !delivered["second"] {
		t.Fatalf("unexpected observer results %v", delivered)
	}
	if got := n.Subscribers(); len(got) != 2 {
		t.Fatalf("nil subscribers should be dropped, got %v", got)
	}
}

func TestNtfySubscriberPostsMessage(t *testing.T) {
	var (
		gotTitle, gotTags, gotPriority, gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := NewNtfySubscriber(srv.URL+"/media", time.Second)
	if err := sub.Notify(context.Background(), NewEvent(sampleAsset(asset.StatusFailed), time.Now())); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotTitle != "mediapipe - Failed" || gotPriority != "high" {
		t.Fatalf("unexpected headers title=%q priority=%q", gotTitle, gotPriority)
	}
	if gotTags != "mediapipe,image,failed" {
		t.Fatalf("unexpected tags %q", gotTags)
	}
	if !strings.Contains(gotBody, "beach") || !strings.Contains(gotBody, "decode") {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestNtfySubscriberReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewNtfySubscriber(srv.URL, time.Second).Notify(context.Background(), NewEvent(sampleAsset(asset.StatusCompleted), time.Now()))
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

type fakeNATS struct {
	subject string
	data    []byte
	flushed bool
	drained bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return nil
}

func (f *fakeNATS) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("flush without deadline")
	}
	f.flushed = true
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestNATSSubscriberPublishesJSON(t *testing.T) {
	conn := &fakeNATS{}
	sub := newNATSSubscriber(conn, "media.processed")

	if err := sub.Notify(context.Background(), NewEvent(sampleAsset(asset.StatusCompleted), time.Now())); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if conn.subject != "media.processed" || !conn.flushed {
		t.Fatalf("unexpected publish state %+v", conn)
	}
	var event Event
	if err := json.Unmarshal(conn.data, &event); err != nil || event.AssetID != 42 {
		t.Fatalf("unexpected payload %s (%v)", conn.data, err)
	}

	n := New(nil, sub)
	if err := n.Close(); err != nil || !conn.drained {
		t.Fatalf("expected Close to drain the connection, err=%v", err)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSubscriberKeysByAsset(t *testing.T) {
	w := &fakeWriter{}
	sub := newKafkaSubscriber(w, "media-processed")

	if err := sub.Notify(context.Background(), NewEvent(sampleAsset(asset.StatusFailed), time.Now())); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "42" {
		t.Fatalf("expected key 42, got %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "asset.failed" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}

	w.err = errors.New("leader not available")
	if err := sub.Notify(context.Background(), NewEvent(sampleAsset(asset.StatusFailed), time.Now())); err == nil {
		t.Fatal("expected writer error to surface")
	}
}

func TestFromConfigBuildsConfiguredSinks(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.LogEvents = true
	cfg.Notifications.NtfyTopic = "https://ntfy.example/media"
	cfg.Notifications.KafkaBrokers = []string{"localhost:9092"}

	n, err := FromConfig(&cfg, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer n.Close()
	if got := strings.Join(n.Subscribers(), ","); got != "log,ntfy,kafka" {
		t.Fatalf("unexpected subscribers %q", got)
	}

	cfg.Notifications = config.Notifications{}
	empty, err := FromConfig(&cfg, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if len(empty.Subscribers()) != 0 {
		t.Fatalf("expected no subscribers, got %v", empty.Subscribers())
	}
	if err := empty.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("publishing to no subscribers should succeed, got %v", err)
	}
}
