package engine

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golex/internal/domain"
	"golex/internal/expr"
	"golex/internal/runtime"
	"golex/internal/script"
)

func newEngine(t *testing.T, src string, opts ...Option) *Engine {
	t.Helper()
	doc, err := script.Parse(src)
	require.NoError(t, err)
	opts = append([]Option{WithLogSink(nil)}, opts...)
	e, err := New(doc, opts...)
	require.NoError(t, err)
	return e
}

func next(t *testing.T, e *Engine) Event {
	t.Helper()
	ev, err := e.Next()
	require.NoError(t, err)
	return ev
}

func choose(t *testing.T, e *Engine, i int) Event {
	t.Helper()
	ev, err := e.Choose(i)
	require.NoError(t, err)
	return ev
}

func variable(t *testing.T, e *Engine, name string) domain.Value {
	t.Helper()
	for _, b := range e.Variables() {
		if b.Name == name {
			return b.Value
		}
	}
	t.Fatalf("variable %s not found", name)
	return domain.Value{}
}

func TestIfElseScenario(t *testing.T) {
	e := newEngine(t, "$n: 5\n# Intro\n~ IF $n > 3\n    big\n~ ELSE\n    small\n~\n")
	ev := next(t, e)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "big", ev.Page.Text())

	e = newEngine(t, "$n: 5\n# Intro\n~ IF $n > 3\n    big\n~ ELSE\n    small\n~\n", WithOverrides(map[string]domain.Value{"n": domain.Number(1)}))
	assert.Equal(t, "small", next(t, e).Page.Text())
}

func TestPropertyInterpolationReflectsAssignment(t *testing.T) {
	e := newEngine(t, "@Oscar\nage: 26\n\n# S\n{@Oscar.age}\n\n@Oscar.age = 27\n{@Oscar.age}\n")
	ev := next(t, e)
	require.Equal(t, EventPage, ev.Kind)
	assert.Equal(t, "26", ev.Page.Text())

	ev = next(t, e)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "27", ev.Page.Text())
	assert.Equal(t, Completed, e.State())
}

func TestEachAggregatesIntoOnePage(t *testing.T) {
	e := newEngine(t, "$arr: [1, 2, 3]\n# S\n~ EACH $arr as $v\n    x={$v}\n~\n")
	ev := next(t, e)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "x=1\nx=2\nx=3", ev.Page.Text())
	assert.Len(t, ev.Page.Segments, 3)
}

func TestRepeatRunsBodyNTimes(t *testing.T) {
	e := newEngine(t, "$c: 0\n# S\n~ REPEAT 3\n    $c += 1\n    r{$c}\n~\n")
	assert.Equal(t, "r1\nr2\nr3", next(t, e).Page.Text())

	e = newEngine(t, "# S\n~ REPEAT 11\n    r\n~\n", WithLoopLimit(10))
	_, err := e.Next()
	require.ErrorIs(t, err, ErrLoopLimitExceeded)
}

func TestRepeatHugeCountHitsLoopLimit(t *testing.T) {
	e := newEngine(t, "# S\n~ REPEAT 100000000000000000000\n    x\n~\nend\n")
	ev, err := e.Next()
	require.ErrorIs(t, err, ErrLoopLimitExceeded)
	assert.Equal(t, Event{}, ev)
	assert.Equal(t, Terminated, e.State())

	e = newEngine(t, "# S\n~ REPEAT -100000000000000000000\n    x\n~\nend\n")
	assert.Equal(t, "end", next(t, e).Page.Text())
}

func TestWhileAlwaysTrueHitsLoopLimit(t *testing.T) {
	e := newEngine(t, "# S\nbefore\n~ WHILE true\n    spin\n~\n", WithLoopLimit(1000))
	ev, err := e.Next()
	require.ErrorIs(t, err, ErrLoopLimitExceeded)
	assert.Equal(t, Event{}, ev)
	assert.Equal(t, Terminated, e.State())
	assert.Empty(t, e.Frames())

	_, err = e.Next()
	require.ErrorIs(t, err, ErrFinished)
}

func TestWhileAlwaysTrueWithDefaultLimits(t *testing.T) {
	body := strings.Repeat("    $i += 1\n", 10)
	e := newEngine(t, "$i: 0\n# S\n~ WHILE true\n"+body+"~\n")
	_, err := e.Next()
	require.ErrorIs(t, err, ErrLoopLimitExceeded)
	assert.False(t, errors.Is(err, ErrStepLimitExceeded))
	assert.Equal(t, float64(DefaultLoopLimit*10), variable(t, e, "i").Num)
}

func TestLoopBodiesDoNotCountAsSteps(t *testing.T) {
	src := "$i: 0\n$j: 0\n# S\n~ WHILE $i < 100\n    $i += 1\n    $j += 2\n~\n~ REPEAT 100\n    $j -= 1\n~\ndone {$i} {$j}\n"
	e := newEngine(t, src, WithStepLimit(20))
	assert.Equal(t, "done 100 100", next(t, e).Page.Text())
}

func TestWhileStopsWhenConditionTurnsFalse(t *testing.T) {
	e := newEngine(t, "$i: 0\n# S\n~ WHILE $i < 4\n    $i += 1\n~\ndone {$i}\n", WithLoopLimit(4))
	assert.Equal(t, "done 4", next(t, e).Page.Text())
}

func TestChoiceIsolation(t *testing.T) {
	src := "$log: \"\"\n# S\nPick\n- A\n    $log = $log + \"a\"\n    first\n- B\n    $log = $log + \"b\"\n    second\nafter\n"
	e := newEngine(t, src)

	ev := next(t, e)
	require.Equal(t, EventChoice, ev.Kind)
	assert.Equal(t, "Pick", ev.Page.Text())
	require.Len(t, ev.Choices, 2)
	assert.Equal(t, "A", ev.Choices[0].Prompt)
	assert.Equal(t, "B", ev.Choices[1].Prompt)
	assert.Equal(t, AwaitingChoice, e.State())

	ev = choose(t, e, 1)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "second\nafter", ev.Page.Text())
	assert.Equal(t, "b", variable(t, e, "log").Str)
}

func TestHiddenChoicesAreSkipped(t *testing.T) {
	e := newEngine(t, "$n: 1\n# S\n[if=$n > 3]\n- hidden\n- shown\n    took shown\n")
	ev := next(t, e)
	require.Len(t, ev.Choices, 1)
	assert.Equal(t, ChoiceOption{Index: 0, Source: 1, Prompt: "shown", Line: 5}, ev.Choices[0])
	assert.Equal(t, "took shown", choose(t, e, 0).Page.Text())

	e = newEngine(t, "$n: 1\n# S\n[if=$n > 3]\n- hidden\nafter\n")
	ev = next(t, e)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "after", ev.Page.Text())
}

func TestEndAtOutermostFrameCompletes(t *testing.T) {
	e := newEngine(t, "# Intro\nhello\n=> #Outro\n# Middle\nskipped\n# Outro\nbye\n=> END\nnever\n")
	ev := next(t, e)
	assert.Equal(t, EventPage, ev.Kind)
	assert.Equal(t, "hello", ev.Page.Text())

	ev = next(t, e)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "bye", ev.Page.Text())
	assert.Equal(t, Completed, e.State())
	assert.Empty(t, e.Frames())
}

func TestSectionsFallThroughInOrder(t *testing.T) {
	e := newEngine(t, "# A\none\n# B\ntwo\n")
	ev := next(t, e)
	assert.Equal(t, EventPage, ev.Kind)
	assert.Equal(t, "one", ev.Page.Text())
	ev = next(t, e)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "two", ev.Page.Text())
}

func TestBounceReturnsToRecordedCursor(t *testing.T) {
	src := "# Main\nstart\n=><= #Sub\nback\n=><= #Sub2\nend\n=> END\n# Sub\nin sub\n=> END\n# Sub2\nin sub2\n"
	e := newEngine(t, src)

	assert.Equal(t, "start", next(t, e).Page.Text())
	frames := e.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "Sub", frames[1].Section)

	assert.Equal(t, "in sub", next(t, e).Page.Text())
	frames = e.Frames()
	require.Len(t, frames, 1, "explicit END returns to the caller")
	assert.Equal(t, "Main", frames[0].Section)
	assert.Equal(t, 2, frames[0].Blocks[0].Cursor)

	assert.Equal(t, "back", next(t, e).Page.Text())
	assert.Equal(t, "in sub2", next(t, e).Page.Text())
	frames = e.Frames()
	require.Len(t, frames, 1, "running off a bounced section returns to the caller")
	assert.Equal(t, 4, frames[0].Blocks[0].Cursor)

	ev := next(t, e)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "end", ev.Page.Text())
}

func TestTailJumpDoesNotGrowStack(t *testing.T) {
	e := newEngine(t, "$i: 0\n# A\n$i += 1\n~ IF $i < 50\n    => #A\n~\ndone\n")
	ev := next(t, e)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, 50.0, variable(t, e, "i").Num)
}

func TestBounceCycleOverflows(t *testing.T) {
	e := newEngine(t, "# A\n=><= #A\n", WithMaxFrames(10))
	_, err := e.Next()
	require.ErrorIs(t, err, ErrStackOverflow)
	assert.Equal(t, Terminated, e.State())
}

func TestTerminateFromAnyDepth(t *testing.T) {
	src := "# A\n=><= #B\n# B\n- go\n    =><= #C\n# C\n~ REPEAT 2\n    ~ IF true\n        => TERMINATE\n    ~\n~\n"
	e := newEngine(t, src)
	ev := next(t, e)
	require.Equal(t, EventChoice, ev.Kind)
	assert.Len(t, e.Frames(), 2)

	ev = choose(t, e, 0)
	assert.Equal(t, EventTerminated, ev.Kind)
	assert.Equal(t, Terminated, e.State())
	assert.Empty(t, e.Frames())

	e = newEngine(t, "hello\n=> TERMINATE\n")
	ev = next(t, e)
	assert.Equal(t, EventTerminated, ev.Kind)
	assert.Equal(t, "hello", ev.Page.Text())
}

func TestUnknownSectionAtRuntime(t *testing.T) {
	e := newEngine(t, "# A\n=> #Shpo\n# Shop\n")
	_, err := e.Next()
	require.ErrorIs(t, err, ErrUnknownSection)
	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Shop", re.Hint)
	assert.Equal(t, 2, re.Line)
	assert.Equal(t, "A", re.Section)
	assert.Equal(t, Terminated, e.State())
}

func TestEvalErrorsTerminate(t *testing.T) {
	e := newEngine(t, "# S\nok\n\n{$missing}\n")
	assert.Equal(t, "ok", next(t, e).Page.Text())
	_, err := e.Next()
	require.ErrorIs(t, err, expr.ErrUndefinedReference)
	assert.Equal(t, Terminated, e.State())

	e = newEngine(t, "$n: 1\n# S\n$n = $n / 0\n")
	_, err = e.Next()
	require.ErrorIs(t, err, expr.ErrDivisionByZero)

	e = newEngine(t, "$n: 1\n# S\n~ EACH $n as $v\n~\n")
	_, err = e.Next()
	require.ErrorIs(t, err, expr.ErrTypeMismatch)
}

func TestCallerMisuseKeepsState(t *testing.T) {
	e := newEngine(t, "# S\n- a\n- b\n")
	_, err := e.Choose(0)
	require.ErrorIs(t, err, ErrUnexpectedChoice)
	assert.Equal(t, Running, e.State())

	next(t, e)
	_, err = e.Next()
	require.ErrorIs(t, err, ErrChoiceRequired)
	_, err = e.Choose(2)
	require.ErrorIs(t, err, ErrInvalidChoice)
	_, err = e.Choose(-1)
	require.ErrorIs(t, err, ErrInvalidChoice)
	assert.Equal(t, AwaitingChoice, e.State())
	assert.Len(t, e.Choices(), 2)

	ev := choose(t, e, 0)
	assert.Equal(t, EventCompleted, ev.Kind)
	_, err = e.Next()
	require.ErrorIs(t, err, ErrFinished)
}

func TestHostFunctionsAndLogs(t *testing.T) {
	src := "!roll(sides=6): 4\n$r: 0\n# S\n$r = !roll()\n/// rolled {$r}\n//! bad\nvalue {$r}\n"
	var logs []runtime.LogEvent
	e := newEngine(t, src, WithLogSink(func(ev runtime.LogEvent) { logs = append(logs, ev) }))
	assert.Equal(t, "value 4", next(t, e).Page.Text(), "unbound functions return their stub")

	e = newEngine(t, src)
	e.OnLog(func(ev runtime.LogEvent) { logs = append(logs, ev) })
	require.NoError(t, e.Bind("roll", func(args []domain.Value) (domain.Value, error) {
		return domain.Number(args[0].Num), nil
	}))
	assert.Equal(t, "value 6", next(t, e).Page.Text())

	require.Len(t, logs, 4)
	assert.Equal(t, runtime.LogEvent{Severity: script.SeverityInfo, Text: "rolled 6", Section: "S", Line: 5}, logs[2])
	assert.Equal(t, script.SeverityError, logs[3].Severity)
}

func TestSpeakersAndAnnotations(t *testing.T) {
	e := newEngine(t, "@Oscar\nname: Ozzy\n\n# S\n[mood=sad]\n@Oscar: hi\nNarrator: yo\n")
	ev := next(t, e)
	want := []Segment{
		{Kind: SegmentDialogue, Speaker: "Ozzy", SpeakerID: "oscar", Text: "hi", Attrs: []script.Attr{{Key: "mood", Value: "sad"}}, Line: 6},
		{Kind: SegmentDialogue, Speaker: "Narrator", Text: "yo", Line: 7},
	}
	if diff := cmp.Diff(want, ev.Page.Segments); diff != "" {
		t.Fatalf("segments (-want +got):\n%s", diff)
	}
	assert.Equal(t, []script.Attr{{Key: "mood", Value: "sad"}}, ev.Page.Annotations)
	assert.Equal(t, "Ozzy: hi\nNarrator: yo", ev.Page.Text())
}

func TestAnnotationElse(t *testing.T) {
	src := "$var: false\n# S\n[if=$var]\nText\n~ ELSE\nOther\n~\n"
	assert.Equal(t, "Other", next(t, newEngine(t, src)).Page.Text())
	e := newEngine(t, src, WithOverrides(map[string]domain.Value{"var": domain.Bool(true)}))
	assert.Equal(t, "Text", next(t, e).Page.Text())
}

func TestLoopScopes(t *testing.T) {
	e := newEngine(t, "$arr: [1]\n$v: 0\n# A\n~ EACH $arr as $v\n    =><= #B\n~\n=> END\n# B\nv={$v}\n")
	assert.Equal(t, "v=0", next(t, e).Page.Text(), "a bounced section does not see the caller's loop variable")
	assert.Equal(t, EventCompleted, next(t, e).Kind)

	e = newEngine(t, "$arr: [1, 2]\n# S\n~ EACH $arr as $v\n    - pick {$v}\n        got {$v}\n~\n")
	ev := next(t, e)
	assert.Equal(t, "pick 1", ev.Choices[0].Prompt)
	ev = choose(t, e, 0)
	assert.Equal(t, "got 1", ev.Page.Text(), "a choice body sees the loop variable")
	assert.Equal(t, "pick 2", ev.Choices[0].Prompt)
	ev = choose(t, e, 0)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "got 2", ev.Page.Text())
}

func TestGroupsStayOnOnePage(t *testing.T) {
	e := newEngine(t, "# S\n| one\n| two\n\nthree\n")
	assert.Equal(t, "one\ntwo", next(t, e).Page.Text())
	assert.Equal(t, "three", next(t, e).Page.Text())
}

func TestStepLimit(t *testing.T) {
	e := newEngine(t, "# A\n=> #B\n# B\n=> #A\n", WithStepLimit(50))
	_, err := e.Next()
	require.ErrorIs(t, err, ErrStepLimitExceeded)
	assert.Equal(t, Terminated, e.State())
}

func TestStartOption(t *testing.T) {
	e := newEngine(t, "# A\na\n# B\nb\n", WithStart("b"))
	assert.Equal(t, "b", next(t, e).Page.Text())

	doc, err := script.Parse("# A\n")
	require.NoError(t, err)
	_, err = New(doc, WithStart("Nope"))
	require.ErrorIs(t, err, ErrUnknownSection)

	empty, err := script.Parse("$x: 1\n")
	require.NoError(t, err)
	e, err = New(empty)
	require.NoError(t, err)
	assert.Equal(t, EventCompleted, next(t, e).Kind)
}

func TestSnapshotRestore(t *testing.T) {
	src := "$n: 0\n# S\nPick\n- A\n    $n = 1\n    a\n- B\n    $n = 2\n    b\n"
	e := newEngine(t, src)
	next(t, e)

	data, err := e.Save()
	require.NoError(t, err)
	again, err := e.Save()
	require.NoError(t, err)
	assert.Equal(t, data, again, "snapshots encode canonically")
	frames := e.Frames()

	assert.Equal(t, "a", choose(t, e, 0).Page.Text())
	assert.Equal(t, 1.0, variable(t, e, "n").Num)

	require.NoError(t, e.Load(data))
	assert.Equal(t, AwaitingChoice, e.State())
	assert.Equal(t, 0.0, variable(t, e, "n").Num)
	if diff := cmp.Diff(frames, e.Frames()); diff != "" {
		t.Fatalf("frames after restore (-want +got):\n%s", diff)
	}
	assert.Equal(t, "b", choose(t, e, 1).Page.Text())
	assert.Equal(t, 2.0, variable(t, e, "n").Num)
}

func TestSnapshotMidLoop(t *testing.T) {
	src := "$arr: [1, 2, 3]\n# S\n~ EACH $arr as $v\n    - at {$v}\n        ok\n~\n"
	e := newEngine(t, src)
	next(t, e)
	choose(t, e, 0)
	snap := e.Snapshot()

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)
	decoded, err := UnmarshalSnapshot(data)
	require.NoError(t, err)

	other := newEngine(t, src)
	require.NoError(t, other.Restore(decoded))
	ev := choose(t, other, 0)
	assert.Equal(t, "ok", ev.Page.Text())
	assert.Equal(t, "at 3", ev.Choices[0].Prompt)
}

func TestRestoreRejectsOtherDocuments(t *testing.T) {
	e := newEngine(t, "# A\n- x\n")
	next(t, e)
	snap := e.Snapshot()

	other := newEngine(t, "# B\n- x\n")
	require.ErrorIs(t, other.Restore(snap), ErrBadSnapshot)
	assert.Equal(t, Running, other.State())

	snap.Pending.SetPath = []int{7}
	require.ErrorIs(t, e.Restore(snap), ErrBadSnapshot)
}

func TestRestoreChecksBlockKinds(t *testing.T) {
	doc, err := script.Parse("# S\nx\n\n~ IF true\n    y\n~\n")
	require.NoError(t, err)
	e, err := New(doc, WithLogSink(nil))
	require.NoError(t, err)
	assert.Equal(t, "x", next(t, e).Page.Text())

	ifAt := slices.IndexFunc(doc.Sections[0].Body, func(n *script.Node) bool { return n.Kind == script.NodeIf })
	require.GreaterOrEqual(t, ifAt, 0)

	bad := []Block{
		{Kind: BlockWhile},
		{Kind: BlockWhile, Path: []int{ifAt, 0}},
		{Kind: BlockRepeat, Path: []int{ifAt, 0}},
		{Kind: BlockEach, Path: []int{ifAt, 0}},
		{Kind: BlockBody, Path: []int{ifAt, 0}, Cursor: -1},
		{Kind: BlockKind(42), Path: []int{ifAt, 0}},
	}
	for _, b := range bad {
		snap := e.Snapshot()
		snap.Frames[0].Blocks = append(snap.Frames[0].Blocks, b)
		require.ErrorIs(t, e.Restore(snap), ErrBadSnapshot, "block %+v", b)
	}
	require.NoError(t, e.Restore(e.Snapshot()))
	assert.Equal(t, "y", next(t, e).Page.Text())
}
