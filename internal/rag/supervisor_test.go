package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/llm"
)

func collect(t *testing.T, sup *Supervisor, ctx context.Context) (string, []string, error) {
	t.Helper()
	var deltas []string
	text, err := sup.Stream(ctx, "prompt", llm.DefaultParams(), func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	return text, deltas, err
}

func waitDone(t *testing.T, gen *llm.FakeGenerator) {
	t.Helper()
	select {
	case <-gen.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop")
	}
}

func TestSupervisor_RepetitionTruncation(t *testing.T) {
	gen := llm.NewFakeGenerator("hello", "hello", "hello", "hello", "hello")
	sup := NewSupervisor(gen)

	text, deltas, err := collect(t, sup, context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if text != "hellohello" {
		t.Errorf("text = %q, want %q", text, "hellohello")
	}
	if strings.Join(deltas, "") != text {
		t.Errorf("deltas %q do not add up to %q", deltas, text)
	}
	waitDone(t, gen)
	if gen.Sent() != 3 {
		t.Errorf("producer sent %d fragments, want 3", gen.Sent())
	}
}

func TestSupervisor_KeepsLinesBeforeRepetitiveLine(t *testing.T) {
	gen := llm.NewFakeGenerator(
		"Điều 1 quy định giờ làm việc.\n",
		"Nhân viên nghỉ trưa.\n",
		"lặp lặp lặp lặp lặp lặp",
	)
	sess, err := NewSupervisor(gen).Start(context.Background(), "p", llm.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	var b strings.Builder
	for {
		d, err := sess.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		b.WriteString(d)
	}
	want := "Điều 1 quy định giờ làm việc.\nNhân viên nghỉ trưa.\nlặp lặp"
	if b.String() != want {
		t.Errorf("got %q, want %q", b.String(), want)
	}
	if sess.State() != StateTruncated || !sess.Repeated() {
		t.Errorf("state = %v, repeated = %v", sess.State(), sess.Repeated())
	}
}

func TestSupervisor_PunctuationHeavyTail(t *testing.T) {
	gen := llm.NewFakeGenerator(
		"Nội dung hợp lệ ở dòng đầu tiên.\n",
		"a!b?c;d!e?f;g!h?i;j!k?l;m!n?o;p!q?r;s!t?u;v!w?x;y!z?",
		"còn nữa",
	)
	text, _, err := collect(t, NewSupervisor(gen), context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if text != "Nội dung hợp lệ ở dòng đầu tiên." {
		t.Errorf("text = %q", text)
	}
	waitDone(t, gen)
	if gen.Sent() != 2 {
		t.Errorf("sent = %d, want 2", gen.Sent())
	}
}

func TestSupervisor_StripsEchoedDelimiter(t *testing.T) {
	tests := []struct {
		name  string
		frags []string
		want  string
	}{
		{"whole", []string{"<|im_start|>assistant\nXin chào", " bạn."}, "Xin chào bạn."},
		{"split", []string{"", "  <|im_start|>assis", "tant\nXin chào", " bạn."}, "Xin chào bạn."},
		{"absent", []string{"Xin chào", " bạn.<|im_end|>"}, "Xin chào bạn."},
		{"later delimiter is just stripped tokens", []string{"Xin", " <|im_start|> chào"}, "Xin chào"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, deltas, err := collect(t, NewSupervisor(llm.NewFakeGenerator(tt.frags...)), context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if text != tt.want {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
			if strings.Join(deltas, "") != text {
				t.Errorf("deltas %q do not add up to %q", deltas, text)
			}
		})
	}
}

func TestSupervisor_NeverRetracts(t *testing.T) {
	gen := llm.NewFakeGenerator("Câu", " hỏi: abc\n", "Trả lời", ": Đây là câu trả lời.", "<|im_", "end|>")
	text, deltas, err := collect(t, NewSupervisor(gen), context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if text != "Đây là câu trả lời." {
		t.Errorf("text = %q", text)
	}
	if strings.Join(deltas, "") != text {
		t.Errorf("deltas %q do not add up to %q", deltas, text)
	}
}

func TestSupervisor_Cancellation(t *testing.T) {
	gen := llm.NewFakeGenerator("một ", "hai ", "ba ", "bốn")
	ctx, cancel := context.WithCancel(context.Background())
	sess, err := NewSupervisor(gen).Start(ctx, "p", llm.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if d, err := sess.Next(); err != nil || d != "một" {
		t.Fatalf("first delta = %q, %v", d, err)
	}
	cancel()
	for {
		if _, err := sess.Next(); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				t.Errorf("unexpected error %v", err)
			}
			break
		}
	}
	waitDone(t, gen)
	sess.Close()
}

func TestSupervisor_CloseStopsProducer(t *testing.T) {
	gen := llm.NewFakeGenerator("một ", "hai ", "ba ", "bốn")
	sess, err := NewSupervisor(gen).Start(context.Background(), "p", llm.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if sess.State() != StateNotStarted {
		t.Errorf("state = %v", sess.State())
	}
	if _, err := sess.Next(); err != nil {
		t.Fatal(err)
	}
	if sess.State() != StateStreaming {
		t.Errorf("state = %v", sess.State())
	}
	sess.Close()
	waitDone(t, gen)
	if gen.Sent() > 2 {
		t.Errorf("sent = %d after close", gen.Sent())
	}
	if _, err := sess.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after Close = %v", err)
	}
}

func TestSupervisor_Errors(t *testing.T) {
	gen := llm.NewFakeGenerator()
	gen.Err = errors.New("boom")
	if _, err := NewSupervisor(gen).Start(context.Background(), "p", llm.DefaultParams()); err == nil {
		t.Error("expected start error")
	}

	stop := errors.New("client gone")
	gen = llm.NewFakeGenerator("một ", "hai ", "ba")
	_, err := NewSupervisor(gen).Stream(context.Background(), "p", llm.DefaultParams(), func(string) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("expected emit error, got %v", err)
	}
	waitDone(t, gen)
}

func TestSupervisor_CompletedEmitsHeldTail(t *testing.T) {
	gen := llm.NewFakeGenerator("Kết quả:\n", "A")
	text, _, err := collect(t, NewSupervisor(gen), context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if text != "Kết quả:\nA" {
		t.Errorf("text = %q", text)
	}
}

func TestSupervisor_ImageSplitAcrossFragments(t *testing.T) {
	gen := llm.NewFakeGenerator(
		"Xem hình ![sơ đồ](http://x/a.png",
		") bên dưới. ",
		"Mạng nội bộ được tách biệt khỏi Internet.",
	)
	text, deltas, err := collect(t, NewSupervisor(gen), context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := "Xem hình bên dưới. Mạng nội bộ được tách biệt khỏi Internet."
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if strings.Join(deltas, "") != text {
		t.Errorf("deltas %q do not add up to %q", deltas, text)
	}
	for _, d := range deltas {
		if strings.Contains(d, "![") || strings.Contains(d, "png") {
			t.Errorf("delta %q leaks the image", d)
		}
	}
}

func TestSupervisor_ConcurrentSessions(t *testing.T) {
	sup := NewSupervisor(llm.NewFakeGenerator("Nhân viên ", "được nghỉ ", "mười hai ngày."))
	const sessions = 2
	results := make(chan string, sessions)
	errs := make(chan error, sessions)
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var b strings.Builder
			text, err := sup.Stream(context.Background(), "p", llm.DefaultParams(), func(d string) error {
				b.WriteString(d)
				return nil
			})
			if err != nil {
				errs <- err
				return
			}
			if b.String() != text {
				errs <- fmt.Errorf("deltas %q do not add up to %q", b.String(), text)
				return
			}
			results <- text
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	for text := range results {
		if text != "Nhân viên được nghỉ mười hai ngày." {
			t.Errorf("text = %q", text)
		}
	}
}
