package layout

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/ByLCY/papyrus-chat/chat"
	"github.com/ByLCY/papyrus-chat/media"
)

func TestComposeFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeComposeScenario,
		Options: &godog.Options{
			Paths:  []string{"./features"},
			Format: "pretty",
			Output: os.Stdout,
		},
	}
	if suite.Run() != 0 {
		t.Fail()
	}
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, media.Request) (string, error) {
	return "", media.ErrNotFound
}

// composeWorld 保存单个场景的状态。
type composeWorld struct {
	msgs     []chat.Message
	resolver MediaResolver
	opts     BuildOptions
	result   *Result
}

func initializeComposeScenario(sc *godog.ScenarioContext) {
	w := &composeWorld{}
	sc.Step(`^a transcript:$`, w.aTranscript)
	sc.Step(`^media cannot be resolved$`, w.mediaCannotBeResolved)
	sc.Step(`^(\d+) text messages on "([^"]*)"$`, w.textMessagesOn)
	sc.Step(`^the transcript is composed$`, w.theTranscriptIsComposed)
	sc.Step(`^the document has (\d+) pages?$`, w.theDocumentHasPages)
	sc.Step(`^the document has more than (\d+) pages?$`, w.theDocumentHasMoreThan)
	sc.Step(`^the bookmarks are:$`, w.theBookmarksAre)
	sc.Step(`^some text reads "([^"]*)"$`, w.someTextReads)
	sc.Step(`^no bubble crosses the bottom margin$`, w.noBubbleCrossesTheBottomMargin)
	sc.Step(`^there are (\d+) bookmarks$`, w.thereAreBookmarks)
	sc.Step(`^bookmark pages never decrease$`, w.bookmarkPagesNeverDecrease)
}

func (w *composeWorld) aTranscript(doc *godog.DocString) error {
	msgs, err := chat.DecodeTranscript([]byte(doc.Content), time.UTC)
	if err != nil {
		return err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *composeWorld) mediaCannotBeResolved() error {
	w.resolver = failingResolver{}
	return nil
}

func (w *composeWorld) textMessagesOn(n int, date string) error {
	day, err := time.ParseInLocation(chat.DateLayout, date, time.UTC)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		w.msgs = append(w.msgs, textMsg(fmt.Sprintf("%s-%d", date, i), day.Add(time.Duration(i)*time.Minute), "消息 "+strconv.Itoa(i), i%3 == 0))
	}
	return nil
}

func (w *composeWorld) theTranscriptIsComposed() error {
	theme, err := DefaultTheme()
	if err != nil {
		return err
	}
	w.opts = BuildOptions{Theme: theme, Measurer: testMeasurer(), Resolver: w.resolver, Location: time.UTC}
	c, err := NewComposer(w.opts)
	if err != nil {
		return err
	}
	w.result, err = c.Compose(context.Background(), w.msgs, nil)
	return err
}

func (w *composeWorld) theDocumentHasPages(n int) error {
	if got := len(w.result.Pages); got != n {
		return fmt.Errorf("expected %d pages, got %d", n, got)
	}
	return nil
}

func (w *composeWorld) theDocumentHasMoreThan(n int) error {
	if got := len(w.result.Pages); got <= n {
		return fmt.Errorf("expected more than %d pages, got %d", n, got)
	}
	return nil
}

func (w *composeWorld) theBookmarksAre(table *godog.Table) error {
	rows := table.Rows[1:]
	if len(rows) != len(w.result.Bookmarks) {
		return fmt.Errorf("expected %d bookmarks, got %d", len(rows), len(w.result.Bookmarks))
	}
	for i, row := range rows {
		page, err := strconv.Atoi(row.Cells[1].Value)
		if err != nil {
			return err
		}
		want := Bookmark{Title: row.Cells[0].Value, Page: page}
		if got := w.result.Bookmarks[i]; got != want {
			return fmt.Errorf("bookmark %d: expected %+v, got %+v", i, want, got)
		}
	}
	return nil
}

func (w *composeWorld) someTextReads(text string) error {
	for _, got := range allTexts(w.result) {
		if got == text {
			return nil
		}
	}
	return fmt.Errorf("no text box reads %q", text)
}

func (w *composeWorld) noBubbleCrossesTheBottomMargin() error {
	bottom := w.opts.Theme.PageHeight - w.opts.Theme.Margin.Bottom
	for i, p := range w.result.Pages {
		for _, r := range p.Rects {
			if r.Y+r.Height > bottom {
				return fmt.Errorf("page %d: rect at %.1f+%.1f crosses %.1f", i, r.Y, r.Height, bottom)
			}
		}
	}
	return nil
}

func (w *composeWorld) thereAreBookmarks(n int) error {
	if got := len(w.result.Bookmarks); got != n {
		return fmt.Errorf("expected %d bookmarks, got %d", n, got)
	}
	return nil
}

func (w *composeWorld) bookmarkPagesNeverDecrease() error {
	marks := w.result.Bookmarks
	if marks[0].Page != 0 {
		return fmt.Errorf("title bookmark points at page %d", marks[0].Page)
	}
	for i := 1; i < len(marks); i++ {
		if marks[i].Page < marks[i-1].Page {
			return fmt.Errorf("bookmark %d (%d) before bookmark %d (%d)", i, marks[i].Page, i-1, marks[i-1].Page)
		}
	}
	return nil
}
