package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/ocr"
)

func TestMonitorFeedAttachesLatestData(t *testing.T) {
	feed := NewMonitorFeed(func() (int64, int64) { return 7, 2 })

	d := display.Empty()
	d.Score = 1200
	feed.Push(d)
	d.Board.SetAt(0, 19, 1)
	feed.Report(ocr.FrameReport{Frame: 3, State: ocr.StatePieceDropping})

	u := <-feed.Updates()
	if u.Data.Score != 1200 {
		t.Errorf("Score = %d, expected 1200", u.Data.Score)
	}
	if u.Data.Board.Count() != 0 {
		t.Error("feed should keep a copy of the pushed board")
	}
	if u.Processed != 7 || u.Dropped != 2 {
		t.Errorf("stats = %d/%d, expected 7/2", u.Processed, u.Dropped)
	}
}

func TestMonitorFeedDropsWhenFull(t *testing.T) {
	feed := NewMonitorFeed(nil)
	for i := range 100 {
		feed.Report(ocr.FrameReport{Frame: i})
	}
	if got := len(feed.Updates()); got != cap(feed.Updates()) {
		t.Errorf("queued %d updates, expected a full queue of %d", got, cap(feed.Updates()))
	}

	feed.Close()
	feed.Close()
	feed.Report(ocr.FrameReport{Frame: 100})
}

func TestMonitorModelTracksTransitions(t *testing.T) {
	feed := NewMonitorFeed(nil)
	var model tea.Model = NewMonitorModel(feed, "capture")

	for i := range maxTransitions + 3 {
		model, _ = model.Update(MonitorUpdate{
			Report: ocr.FrameReport{
				Frame: i,
				State: ocr.StatePieceDropping,
				Transition: &ocr.Transition{
					Frame: i,
					From:  ocr.StateBeforeGame,
					To:    ocr.StatePieceDropping,
					Event: "start-game",
				},
				Statuses: []ocr.EventStatus{{Name: "topout"}, {Name: "confusion", PreconditionMet: true}},
			},
			Data: display.Empty(),
		})
	}

	m := model.(MonitorModel)
	trs := m.Transitions()
	if len(trs) != maxTransitions {
		t.Fatalf("kept %d transitions, expected %d", len(trs), maxTransitions)
	}
	if trs[0].Frame != 3 {
		t.Errorf("oldest kept transition frame = %d, expected 3", trs[0].Frame)
	}

	view := m.View()
	for _, want := range []string{"capture", "piece-dropping", "topout", "confusion", "start-game"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestMonitorModelFinishes(t *testing.T) {
	feed := NewMonitorFeed(nil)
	m := NewMonitorModel(feed, "")
	feed.Close()

	msg := m.Init()()
	if _, ok := msg.(monitorDoneMsg); !ok {
		t.Fatalf("Init() command returned %T, expected monitorDoneMsg", msg)
	}
	next, _ := m.Update(msg)
	if !strings.Contains(next.View(), "source finished") {
		t.Error("View() should say the source finished")
	}
}
