package workflow

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/designd/internal/events"
	"github.com/fyrsmithlabs/designd/internal/llm"
	"github.com/fyrsmithlabs/designd/internal/session"
	"github.com/fyrsmithlabs/designd/internal/telemetry"
)

func TestNewDriver_RequiresDeps(t *testing.T) {
	_, err := NewDriver(Deps{}, Config{}, nil)
	assert.Error(t, err)
}

func TestStart_RoutesExistingImageToImageBranch(t *testing.T) {
	h := newHarness(t)
	img := writeFile(t, h.dir, "input.png", []byte("input"))

	out, err := h.driver.Start(context.Background(), Request{ImagePath: img, TextQuery: "ignored"})
	require.NoError(t, err)

	assert.Equal(t, session.InputImage, out.InputType)
	require.NotNil(t, out.Image)
	assert.Nil(t, out.Text)
	assert.Zero(t, h.model.calls["chat"])
	assert.Equal(t, 1, h.model.calls["describe"])
}

func TestStart_RoutesMissingImageToText(t *testing.T) {
	h := newHarness(t)

	out, err := h.driver.Start(context.Background(), Request{
		ImagePath: filepath.Join(h.dir, "missing.png"),
		TextQuery: "의자 디자인 특허 알려줘",
	})
	require.NoError(t, err)

	assert.Equal(t, session.InputText, out.InputType)
	require.NotNil(t, out.Text)
	assert.Nil(t, out.Image)
	assert.Zero(t, h.model.calls["describe"])
	assert.Zero(t, h.embedder.calls)
}

func TestStart_RoutesUnreadableImageToText(t *testing.T) {
	h := newHarness(t)

	out, err := h.driver.Start(context.Background(), Request{ImagePath: h.dir, TextQuery: "디렉터리"})
	require.NoError(t, err)
	assert.Equal(t, session.InputText, out.InputType)

	if os.Geteuid() == 0 {
		t.Skip("root can open files regardless of mode")
	}
	img := writeFile(t, h.dir, "locked.png", []byte("input"))
	require.NoError(t, os.Chmod(img, 0o000))

	out, err = h.driver.Start(context.Background(), Request{ImagePath: img, TextQuery: "잠긴 파일"})
	require.NoError(t, err)
	assert.Equal(t, session.InputText, out.InputType)
	assert.Zero(t, h.model.calls["describe"])
}

func TestStart_NothingToRoute(t *testing.T) {
	h := newHarness(t)
	_, err := h.driver.Start(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStartImageSession_SuspendsForSelection(t *testing.T) {
	tt := telemetry.NewTestTelemetry(t)
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.driver.StartImageSession(ctx, []byte("uploaded"), "../../chair.jpg", "")
	require.NoError(t, err)

	assert.Equal(t, "session-1", res.SessionID)
	assert.Equal(t, "둥근 등받이가 있는 의자", res.InputAnalysis)
	assert.Equal(t, SelectionMessage, res.Message)
	assert.Equal(t, []int{1, 2, 3}, res.Options)
	assert.Equal(t, 10, h.searcher.lastN)

	require.Len(t, res.Results, 3)
	assert.Equal(t, "3020180012345", res.Results[0].ApplicationNumber)
	assert.NotEmpty(t, res.Results[0].ImagePath)
	assert.Equal(t, "N/A", res.Results[1].AdmstStat)
	assert.Empty(t, res.Results[2].ImagePath)

	assert.NoFileExists(t, filepath.Join(h.dir, "uploads", "session-1-chair.jpg"))

	st, err := h.store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, session.StageAwaitingSelection, st.Stage)
	assert.Equal(t, session.InputImage, st.InputType)
	assert.Equal(t, filepath.Join(h.dir, "uploads", "session-1-chair.jpg"), st.ImagePath)
	assert.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString([]byte("uploaded")), st.Base64Image)
	assert.Len(t, st.SearchResults.IDs, 3)

	assert.Equal(t, []events.Type{events.TypeStarted, events.TypeAwaitingSelection}, h.publisher.types())
	assert.Contains(t, tt.SpanNames(), "workflow.StartImageSession")
	assert.True(t, tt.HasMetric(t, "designd.workflow.stage_transitions_total"))
}

func TestStartImageSession_RemovesUploadOnFailure(t *testing.T) {
	h := newHarness(t)
	h.model.describeErr = errUpstream

	_, err := h.driver.StartImageSession(context.Background(), []byte("uploaded"), "chair.jpg", "")
	require.ErrorIs(t, err, errUpstream)

	entries, err := os.ReadDir(filepath.Join(h.dir, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStartImageSession_EmptyImage(t *testing.T) {
	h := newHarness(t)
	_, err := h.driver.StartImageSession(context.Background(), nil, "a.jpg", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResume_PresentIndex(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start, err := h.driver.StartImageSession(ctx, []byte("uploaded"), "chair.jpg", "침해 여부 알려줘")
	require.NoError(t, err)

	res, err := h.driver.ResumeWithSelection(ctx, start.SessionID, 1)
	require.NoError(t, err)

	assert.Equal(t, "유사점: 등받이 곡선", res.DetailedComparison)
	assert.NotEmpty(t, res.FinalReport)
	require.NotNil(t, res.SelectedDesign)
	assert.Equal(t, "3020180012345", res.SelectedDesign.ApplicationNumber)

	require.Len(t, h.model.reports, 1)
	in := h.model.reports[0]
	assert.Equal(t, "침해 여부 알려줘", in.UserQuery)
	assert.Equal(t, "둥근 등받이가 있는 의자", in.InputAnalysis)
	assert.Equal(t, "출원번호: 3020180012345\n상품명: 의자\n등록상태: 등록\n유사도 거리: 0.1234", in.SelectedDesignInfo)

	st, err := h.store.Get(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StageDone, st.Stage)
	assert.Equal(t, 1, st.SelectedIndex)
	assert.Equal(t, events.TypeCompleted, h.publisher.types()[2])
}

func TestResume_AbsentIndexStillReports(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start, err := h.driver.StartImageSession(ctx, []byte("uploaded"), "chair.jpg", "")
	require.NoError(t, err)

	res, err := h.driver.ResumeWithSelection(ctx, start.SessionID, 42)
	require.NoError(t, err)

	assert.Equal(t, ComparisonNotFound, res.DetailedComparison)
	assert.NotEmpty(t, res.FinalReport)
	assert.Nil(t, res.SelectedDesign)
	assert.Zero(t, h.model.calls["compare"])

	require.Len(t, h.model.reports, 1)
	assert.Equal(t, NoDesignInfo, h.model.reports[0].SelectedDesignInfo)
	assert.Equal(t, DefaultReportQuery, h.model.reports[0].UserQuery)
}

func TestResume_SelectedWithoutLocalImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start, err := h.driver.StartImageSession(ctx, []byte("uploaded"), "chair.jpg", "")
	require.NoError(t, err)

	res, err := h.driver.ResumeWithSelection(ctx, start.SessionID, 3)
	require.NoError(t, err)

	assert.Equal(t, ComparisonNotFound, res.DetailedComparison)
	require.NotNil(t, res.SelectedDesign)
	assert.Contains(t, h.model.reports[0].SelectedDesignInfo, "상품명: 조명")
}

func TestResume_UnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.driver.ResumeWithSelection(context.Background(), "nope", 1)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Zero(t, h.model.total())
}

func TestResume_DoubleResumeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start, err := h.driver.StartImageSession(ctx, []byte("uploaded"), "chair.jpg", "")
	require.NoError(t, err)

	first, err := h.driver.ResumeWithSelection(ctx, start.SessionID, 1)
	require.NoError(t, err)
	calls := h.model.total()

	second, err := h.driver.ResumeWithSelection(ctx, start.SessionID, 2)
	require.NoError(t, err)

	assert.Equal(t, calls, h.model.total())
	assert.Equal(t, first, second)

	st, err := h.store.Get(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.SelectedIndex)
}

func TestResume_TextSessionRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txt, err := h.driver.AnswerText(ctx, "", "안녕")
	require.NoError(t, err)

	_, err = h.driver.ResumeWithSelection(ctx, txt.SessionID, 1)
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestResume_FailedSessionRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start, err := h.driver.StartImageSession(ctx, []byte("uploaded"), "chair.jpg", "")
	require.NoError(t, err)

	h.model.reportErr = errUpstream
	_, err = h.driver.ResumeWithSelection(ctx, start.SessionID, 1)
	require.ErrorIs(t, err, errUpstream)

	st, err := h.store.Get(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StageFailed, st.Stage)
	assert.Contains(t, st.LastError, "report generation failed")
	assert.Equal(t, "유사점: 등받이 곡선", st.DetailedComparison, "partial results are kept")

	h.model.reportErr = nil
	_, err = h.driver.ResumeWithSelection(ctx, start.SessionID, 1)
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestImageBranch_FailureCheckpointsFailedStage(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		want  string
	}{
		{
			name:  "analysis",
			setup: func(h *harness) { h.model.describeErr = errUpstream },
			want:  "image analysis failed",
		},
		{
			name:  "embedding",
			setup: func(h *harness) { h.embedder.err = errUpstream },
			want:  "image embedding failed",
		},
		{
			name:  "search",
			setup: func(h *harness) { h.searcher.err = errUpstream },
			want:  "similar design search failed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)

			_, err := h.driver.StartImageSession(context.Background(), []byte("uploaded"), "chair.jpg", "")
			require.ErrorIs(t, err, errUpstream)
			assert.Contains(t, err.Error(), tc.want)

			st, err := h.store.Get(context.Background(), "session-1")
			require.NoError(t, err)
			assert.Equal(t, session.StageFailed, st.Stage)
			assert.Contains(t, h.publisher.types(), events.TypeFailed)
		})
	}
}

func TestAnswerText_MultiTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.driver.AnswerText(ctx, "", "첫 질문")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Turn)

	second, err := h.driver.AnswerText(ctx, first.SessionID, "두번째 질문")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Turn)
	assert.Equal(t, first.SessionID, second.SessionID)

	third, err := h.driver.AnswerText(ctx, first.SessionID, "세번째 질문")
	require.NoError(t, err)
	assert.Equal(t, 3, third.Turn)

	// system + 4 history messages + user
	msgs := h.model.chatMessages[2]
	require.Len(t, msgs, 6)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "첫 질문", msgs[1].Content)
	assert.Equal(t, "세번째 질문", msgs[5].Content)

	fresh, err := h.driver.AnswerText(ctx, "", "새 세션")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Turn)
	assert.NotEqual(t, first.SessionID, fresh.SessionID)

	st, err := h.store.Get(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, st.Messages, 6)
	assert.Equal(t, session.StageDone, st.Stage)
}

func TestAnswerText_ToolCalls(t *testing.T) {
	h := newHarness(t)
	h.model.chatReplies = []*llm.Reply{{Message: llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "search_design_db", Arguments: `{"query":"의자"}`},
			{ID: "call_2", Name: "web_search", Arguments: `{"query":"의자 특허"}`},
		},
	}}}

	res, err := h.driver.AnswerText(context.Background(), "", "의자 디자인 찾아줘")
	require.NoError(t, err)
	assert.Equal(t, "final answer", res.Answer)

	require.Len(t, h.tools.calls, 2)
	require.Len(t, h.model.chatTools, 1)
	assert.Len(t, h.model.chatTools[0], 2)

	require.Len(t, h.model.completeInput, 1)
	final := h.model.completeInput[0]
	require.Len(t, final, 5)
	assert.Len(t, final[2].ToolCalls, 2)
	assert.Equal(t, llm.RoleTool, final[3].Role)
	assert.Equal(t, "call_1", final[3].ToolCallID)
	assert.Equal(t, "result for web_search", final[4].Content)
}

func TestAnswerText_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.driver.AnswerText(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.driver.AnswerText(ctx, "unknown", "질문")
	assert.ErrorIs(t, err, session.ErrNotFound)

	img, err := h.driver.StartImageSession(ctx, []byte("uploaded"), "chair.jpg", "")
	require.NoError(t, err)
	_, err = h.driver.AnswerText(ctx, img.SessionID, "질문")
	assert.ErrorIs(t, err, ErrInvalidStage)

	h.model.chatErr = errUpstream
	_, err = h.driver.AnswerText(ctx, "", "질문")
	assert.ErrorIs(t, err, errUpstream)
}

func TestAnswerText_ConcurrentCallsOnOneSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, err := h.driver.AnswerText(ctx, "", "시작")
	require.NoError(t, err)

	var wg sync.WaitGroup
	turns := make(chan int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.driver.AnswerText(ctx, first.SessionID, "동시 질문")
			if assert.NoError(t, err) {
				turns <- res.Turn
			}
		}()
	}
	wg.Wait()
	close(turns)

	seen := map[int]bool{}
	for turn := range turns {
		seen[turn] = true
	}
	assert.Equal(t, map[int]bool{2: true, 3: true, 4: true, 5: true}, seen)
}

func TestLock_EntriesReleased(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_, err := h.driver.ResumeWithSelection(ctx, fmt.Sprintf("bogus-%d", i), 1)
		require.ErrorIs(t, err, session.ErrNotFound)
	}
	assert.Zero(t, h.driver.lockCount())

	_, err := h.driver.AnswerText(ctx, "", "질문")
	require.NoError(t, err)
	start, err := h.driver.StartImageSession(ctx, []byte("uploaded"), "chair.jpg", "")
	require.NoError(t, err)
	_, err = h.driver.ResumeWithSelection(ctx, start.SessionID, 1)
	require.NoError(t, err)
	assert.Zero(t, h.driver.lockCount())
}

func TestLock_SerialisesHolders(t *testing.T) {
	h := newHarness(t)

	unlock := h.driver.lock("a")
	acquired := make(chan struct{})
	go func() {
		release := h.driver.lock("a")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, h.driver.lockCount())

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return h.driver.lockCount() == 0 }, time.Second, 5*time.Millisecond)
}
