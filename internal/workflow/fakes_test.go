package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/designd/internal/events"
	"github.com/fyrsmithlabs/designd/internal/llm"
	"github.com/fyrsmithlabs/designd/internal/session"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
)

type fakeModel struct {
	mu sync.Mutex

	describeErr error
	compareErr  error
	reportErr   error
	chatReplies []*llm.Reply
	chatErr     error

	calls         map[string]int
	reports       []llm.ReportInput
	chatMessages  [][]llm.Message
	chatTools     [][]llm.ToolSpec
	completeInput [][]llm.Message
}

func newFakeModel() *fakeModel {
	return &fakeModel{calls: map[string]int{}}
}

func (m *fakeModel) count(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
}

func (m *fakeModel) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *fakeModel) DescribeImage(_ context.Context, dataURL string) (string, error) {
	m.count("describe")
	if m.describeErr != nil {
		return "", m.describeErr
	}
	return "둥근 등받이가 있는 의자", nil
}

func (m *fakeModel) CompareImages(_ context.Context, inputURL, comparisonURL string) (string, error) {
	m.count("compare")
	if m.compareErr != nil {
		return "", m.compareErr
	}
	return "유사점: 등받이 곡선", nil
}

func (m *fakeModel) WriteReport(_ context.Context, in llm.ReportInput) (string, error) {
	m.count("report")
	if m.reportErr != nil {
		return "", m.reportErr
	}
	m.mu.Lock()
	m.reports = append(m.reports, in)
	m.mu.Unlock()
	return "FTO 리포트: " + in.SelectedDesignInfo, nil
}

func (m *fakeModel) Chat(_ context.Context, msgs []llm.Message, tools []llm.ToolSpec) (*llm.Reply, error) {
	m.count("chat")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatMessages = append(m.chatMessages, msgs)
	m.chatTools = append(m.chatTools, tools)
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	if len(m.chatReplies) > 0 {
		r := m.chatReplies[0]
		m.chatReplies = m.chatReplies[1:]
		return r, nil
	}
	return &llm.Reply{Message: llm.Message{Role: llm.RoleAssistant, Content: fmt.Sprintf("answer %d", len(msgs))}}, nil
}

func (m *fakeModel) Complete(_ context.Context, msgs []llm.Message) (string, error) {
	m.count("complete")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeInput = append(m.completeInput, msgs)
	return "final answer", nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (e *fakeEmbedder) EmbedImage(_ context.Context, image []byte) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0, 0}, nil
}

type fakeSearcher struct {
	result *vectorstore.QueryResult
	err    error
	lastN  int
}

func (s *fakeSearcher) SearchAndFilter(_ context.Context, _ []float32, n int) (*vectorstore.QueryResult, error) {
	s.lastN = n
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type fakeResolver map[string]string

func (r fakeResolver) Resolve(id string) (string, bool) {
	p, ok := r[id]
	return p, ok
}

type fakeToolbox struct {
	calls []llm.ToolCall
}

func (t *fakeToolbox) Definitions() []llm.ToolSpec {
	return []llm.ToolSpec{{Name: "web_search"}, {Name: "search_design_db"}}
}

func (t *fakeToolbox) Call(_ context.Context, call llm.ToolCall) string {
	t.calls = append(t.calls, call)
	return "result for " + call.Name
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	driver    *Driver
	model     *fakeModel
	embedder  *fakeEmbedder
	searcher  *fakeSearcher
	resolver  fakeResolver
	tools     *fakeToolbox
	store     *session.MemoryStore
	publisher *recordingPublisher
	dir       string
}

// newHarness builds a driver whose index returns three deduplicated designs.
// The first two have local images, the third does not.
func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	imgA := writeFile(t, dir, "3020180012345_001.jpg", []byte("image-a"))
	imgB := writeFile(t, dir, "3020190054321_002.jpg", []byte("image-b"))

	h := &harness{
		model:    newFakeModel(),
		embedder: &fakeEmbedder{},
		searcher: &fakeSearcher{result: &vectorstore.QueryResult{
			IDs:       []string{"3020180012345-IMG-1", "3020190054321-IMG-2", "3020200099999-IMG-3"},
			Distances: []float64{0.1234, 0.2, 0.3},
			Metadatas: []map[string]string{
				{"applicationNumber": "3020180012345", "articleName": "의자", "admstStat": "등록"},
				{"applicationNumber": "3020190054321", "articleName": "테이블"},
				{"applicationNumber": "3020200099999", "articleName": "조명", "admstStat": "소멸"},
			},
		}},
		resolver: fakeResolver{
			"3020180012345-IMG-1": imgA,
			"3020190054321-IMG-2": imgB,
		},
		tools:     &fakeToolbox{},
		store:     session.NewMemoryStore(time.Hour, time.Minute),
		publisher: &recordingPublisher{},
		dir:       dir,
	}

	seq := 0
	d, err := NewDriver(Deps{
		Model:    h.model,
		Embedder: h.embedder,
		Searcher: h.searcher,
		Resolver: h.resolver,
		Tools:    h.tools,
		Store:    h.store,
		Events:   h.publisher,
	}, Config{
		UploadDir: filepath.Join(dir, "uploads"),
		NewID: func() string {
			seq++
			return fmt.Sprintf("session-%d", seq)
		},
	}, nil)
	require.NoError(t, err)
	h.driver = d
	return h
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

var errUpstream = errors.New("upstream unavailable")

func (d *Driver) lockCount() int {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	return len(d.locks)
}
