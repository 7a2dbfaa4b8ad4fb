package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/courier-bot/courier/internal/logging"
	"github.com/courier-bot/courier/internal/platform"
)

const (
	// fullTextInlineMax: longer final responses are attached as a file.
	fullTextInlineMax = 2000

	// errorExcerptMax caps the failure-field excerpt.
	errorExcerptMax = 200

	editTimeout = 30 * time.Second
)

// Options configures an Aggregator.
type Options struct {
	// Debounce is the deferred-edit delay (default 1500ms).
	Debounce time.Duration

	// CharBudget caps the rendered progress description (default 3800).
	CharBudget int

	// EditsPerSecond rate-caps debounced edit calls (default 1).
	EditsPerSecond int

	// SkipMessageTypes suppresses type / type:subtype tags.
	SkipMessageTypes []string
}

func (o *Options) applyDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = 1500 * time.Millisecond
	}
	if o.CharBudget <= 0 {
		o.CharBudget = 3800
	}
	if o.EditsPerSecond <= 0 {
		o.EditsPerSecond = 1
	}
}

// job is one queued batch. done receives the processing outcome exactly once.
type job struct {
	ctx   context.Context
	batch []Message
	done  chan error
}

// Aggregator converts assistant event batches into a single live progress
// message. Batches are processed strictly one at a time in arrival order;
// the only concurrency outside the queue is the debounce timer, whose
// in-flight edit finalization explicitly awaits.
type Aggregator struct {
	messenger  platform.Messenger
	classifier *Classifier
	debounce   time.Duration
	budget     int
	limiter    *rate.Limiter
	log        *slog.Logger

	jobs chan *job
	quit chan struct{}
	once sync.Once

	mu          sync.Mutex
	state       *progressState
	timer       *time.Timer
	pendingEdit bool
	editDone    chan struct{} // non-nil while a debounced edit is in flight
}

// New creates an Aggregator and starts its queue consumer.
func New(messenger platform.Messenger, opts Options) *Aggregator {
	opts.applyDefaults()

	a := &Aggregator{
		messenger:  messenger,
		classifier: NewClassifier(opts.SkipMessageTypes),
		debounce:   opts.Debounce,
		budget:     opts.CharBudget,
		limiter:    rate.NewLimiter(rate.Limit(opts.EditsPerSecond), 1),
		log:        logging.ForComponent(logging.CompStream),
		jobs:       make(chan *job, 64),
		quit:       make(chan struct{}),
	}
	go a.loop()
	return a
}

// Close stops the queue consumer. Queued batches already accepted are still
// processed; new submissions fail.
func (a *Aggregator) Close() {
	a.once.Do(func() { close(a.quit) })
}

// ResetProgress discards the current run and starts a new one. When
// reuseMessageID is set the run starts live against that message, so a
// caller that already posted an initial reply does not get a duplicate.
func (a *Aggregator) ResetProgress(prompt, reuseMessageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pendingEdit = false
	a.state = &progressState{
		prompt:    prompt,
		messageID: reuseMessageID,
	}

	a.log.Info("progress_reset",
		"reuse_message_id", reuseMessageID,
		"has_prompt", prompt != "")
}

// SendMessages submits one batch for processing and returns once the batch
// has been fully applied. Concurrent calls are serialized in arrival order.
func (a *Aggregator) SendMessages(ctx context.Context, batch []Message) error {
	j := &job{ctx: ctx, batch: batch, done: make(chan error, 1)}

	select {
	case a.jobs <- j:
	case <-a.quit:
		return fmt.Errorf("aggregator is closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop is the queue consumer: one batch at a time, in arrival order. A
// failing batch is reported to its submitter and never poisons the queue.
func (a *Aggregator) loop() {
	for {
		select {
		case <-a.quit:
			return
		case j := <-a.jobs:
			j.done <- a.processBatch(j.ctx, j.batch)
		}
	}
}

func (a *Aggregator) processBatch(ctx context.Context, batch []Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch processing panicked: %v", r)
			a.log.Error("batch_panic", "panic", fmt.Sprint(r))
		}
	}()

	for _, m := range batch {
		if err := a.handleMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) handleMessage(ctx context.Context, m Message) error {
	// Raw text is retained for the completion attachment regardless of
	// classifier suppression.
	if m.Kind == KindText {
		a.mu.Lock()
		if a.state != nil && !a.state.finished {
			a.state.appendFullText(m.Text)
		}
		a.mu.Unlock()
	}

	if a.classifier.Skip(m) {
		return nil
	}

	if m.Kind == KindSystem {
		switch m.Subtype {
		case SubCompletion, SubFailure:
			a.finalize(ctx, m)
		default:
			a.standalone(ctx, m)
		}
		return nil
	}

	line, ok := a.classifier.Classify(m)
	if !ok {
		return nil
	}
	return a.appendAndRender(ctx, line)
}

// appendAndRender adds one progress line, then either creates the live
// message (first visible line) or schedules a debounced edit.
func (a *Aggregator) appendAndRender(ctx context.Context, line string) error {
	a.mu.Lock()
	st := a.state
	if st == nil || st.finished {
		a.mu.Unlock()
		return nil
	}

	st.appendLine(line, a.budget)

	if st.messageID != "" {
		a.scheduleEditLocked()
		a.mu.Unlock()
		return nil
	}
	if st.createFailed {
		// No edit target until finalization forces a flush.
		a.mu.Unlock()
		return nil
	}

	out := a.progressOutgoing(st)
	a.mu.Unlock()

	id, err := a.messenger.Send(ctx, out)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != st {
		// Run was reset while the create was in flight.
		return nil
	}
	if err != nil || id == "" {
		st.createFailed = true
		a.log.Warn("progress_create_failed", "error", err)
		return nil
	}
	st.messageID = id
	a.log.Debug("progress_created", "message_id", id)
	return nil
}

// scheduleEditLocked (mu held) replaces any pending debounce timer with a
// fresh one.
func (a *Aggregator) scheduleEditLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.pendingEdit = true
	a.timer = time.AfterFunc(a.debounce, a.debouncedEdit)
}

// debouncedEdit runs on the timer goroutine. It snapshots the rendering
// under the lock, publishes an in-flight handle for finalization to await,
// then performs exactly one rate-limited edit.
func (a *Aggregator) debouncedEdit() {
	a.mu.Lock()
	st := a.state
	if st == nil || st.finished || st.messageID == "" || !a.pendingEdit {
		a.pendingEdit = false
		a.mu.Unlock()
		return
	}
	a.pendingEdit = false

	done := make(chan struct{})
	a.editDone = done
	out := a.progressOutgoing(st)
	id := st.messageID
	a.mu.Unlock()

	defer func() {
		close(done)
		a.mu.Lock()
		if a.editDone == done {
			a.editDone = nil
		}
		a.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), editTimeout)
	defer cancel()

	if err := a.limiter.Wait(ctx); err != nil {
		return
	}
	if err := a.messenger.Edit(ctx, id, out); err != nil {
		// Losing one progress update must not abort the run.
		a.log.Warn("progress_edit_failed", "message_id", id, "error", err)
	}
}

// finalize handles a terminal completion or failure: cancels the debounce,
// waits out any edit already in flight, then writes the terminal embed.
// The terminal write always happens last.
func (a *Aggregator) finalize(ctx context.Context, m Message) {
	a.mu.Lock()
	st := a.state
	if st == nil {
		st = &progressState{}
		a.state = st
	}
	if st.finished {
		a.mu.Unlock()
		return
	}
	st.finished = true

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pendingEdit = false
	editDone := a.editDone

	desc := ""
	if len(st.lines) > 0 || st.trimmedCount > 0 {
		desc = st.render(a.budget)
	}
	id := st.messageID
	fullText := st.fullText()
	a.mu.Unlock()

	if editDone != nil {
		<-editDone
	}

	out := a.terminalOutgoing(m, desc, fullText)

	if id != "" {
		err := a.messenger.Edit(ctx, id, out)
		if err == nil {
			a.log.Info("run_finalized", "message_id", id, "outcome", string(m.Subtype))
			return
		}
		a.log.Warn("terminal_edit_failed", "message_id", id, "error", err)
	}
	if _, err := a.messenger.Send(ctx, out); err != nil {
		a.log.Error("terminal_send_failed", "outcome", string(m.Subtype), "error", err)
		return
	}
	a.log.Info("run_finalized", "outcome", string(m.Subtype))
}

// standalone renders a non-terminal system message as its own new message,
// leaving the progress state untouched.
func (a *Aggregator) standalone(ctx context.Context, m Message) {
	out := &platform.Outgoing{}

	switch m.Subtype {
	case SubShutdown:
		embed := &platform.Embed{
			Title: "🛑 Shutting down",
			Color: platform.ColorNeutral,
		}
		if m.Meta != nil {
			embed.Fields = appendField(embed.Fields, "Repo", m.Meta.Repo)
			embed.Fields = appendField(embed.Fields, "Branch", m.Meta.Branch)
			embed.Fields = appendField(embed.Fields, "Category", m.Meta.Category)
			embed.Fields = appendField(embed.Fields, "Signal", m.Meta.Signal)
		}
		out.Embed = embed
	default:
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return
		}
		out.Content = text
	}

	if _, err := a.messenger.Send(ctx, out); err != nil {
		a.log.Warn("standalone_send_failed", "subtype", string(m.Subtype), "error", err)
	}
}

// progressOutgoing renders the live progress embed.
func (a *Aggregator) progressOutgoing(st *progressState) *platform.Outgoing {
	title := "⏳ Working"
	if st.prompt != "" {
		title = "⏳ " + truncate(strings.Join(strings.Fields(st.prompt), " "), 80)
	}
	return &platform.Outgoing{
		Embed: &platform.Embed{
			Title:       title,
			Description: st.render(a.budget),
			Color:       platform.ColorNeutral,
		},
	}
}

// terminalOutgoing builds the final embed for a completion or failure.
func (a *Aggregator) terminalOutgoing(m Message, desc, fullText string) *platform.Outgoing {
	embed := &platform.Embed{Description: desc}

	success := m.Subtype == SubCompletion
	if success {
		embed.Title = "✅ Completed"
		embed.Color = platform.ColorSuccess
	} else {
		embed.Title = "❌ Failed"
		embed.Color = platform.ColorFailure
	}

	if meta := m.Meta; meta != nil {
		embed.Fields = appendField(embed.Fields, "Working directory", meta.WorkDir)
		embed.Fields = appendField(embed.Fields, "Session", meta.SessionID)
		embed.Fields = appendField(embed.Fields, "Model", meta.Model)
		if meta.HasCost {
			embed.Fields = appendField(embed.Fields, "Cost", fmt.Sprintf("$%.4f", meta.CostUSD))
		}
		if meta.DurationMs > 0 {
			embed.Fields = appendField(embed.Fields, "Duration",
				fmt.Sprintf("%.2fs", float64(meta.DurationMs)/1000))
		}
		if !success && meta.Error != "" {
			embed.Fields = appendField(embed.Fields, "Error", truncate(meta.Error, errorExcerptMax))
		}
	}

	out := &platform.Outgoing{Embed: embed}

	if fullText != "" {
		if len(fullText) > fullTextInlineMax {
			out.Files = []platform.File{{Name: "response.md", Data: []byte(fullText)}}
		} else {
			out.Content = fullText
		}
	}

	// Only a successful run offers follow-up controls.
	if success {
		out.Components = []platform.ActionRow{
			{Buttons: []platform.Button{
				{Label: "Continue", CustomID: "session:continue", Style: platform.ButtonPrimary},
				{Label: "Session ID", CustomID: "session:show-id"},
				{Label: "Previous", CustomID: "session:previous"},
				{Label: "Cancel", CustomID: "session:cancel", Style: platform.ButtonDanger},
			}},
			{Buttons: []platform.Button{
				{Label: "New worktree", CustomID: "worktree:new"},
				{Label: "List worktrees", CustomID: "worktree:list"},
			}},
		}
	}
	return out
}

func appendField(fields []platform.EmbedField, name, value string) []platform.EmbedField {
	if value == "" {
		return fields
	}
	return append(fields, platform.EmbedField{Name: name, Value: value, Inline: true})
}
