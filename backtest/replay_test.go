package backtest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bytra_go/internal/domain"
	"bytra_go/internal/engine"
	"bytra_go/internal/event"
	"bytra_go/internal/execution"
	"bytra_go/internal/infra/bybit"
	"bytra_go/internal/position"
	"bytra_go/internal/storage"
	"bytra_go/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayTransport_PlaysOnce(t *testing.T) {
	tr := NewReaderReplay(strings.NewReader("a\n\n  b  \nc"))
	conn, err := tr.Connect(context.Background(), []string{"x"})
	require.NoError(t, err)

	var frames []string
	for {
		f, err := conn.ReadNext(context.Background())
		if err != nil {
			assert.ErrorIs(t, err, engine.ErrStreamClosed)
			break
		}
		frames = append(frames, string(f))
	}
	assert.Equal(t, []string{"a", "b", "c"}, frames)

	require.NoError(t, conn.Send(context.Background(), []byte(`{"op":"ping"}`)))
	assert.Equal(t, 1, tr.Sent())
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = tr.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrReplayDone)
}

func TestReplayTransport_MissingFile(t *testing.T) {
	tr := NewFileReplay(filepath.Join(t.TempDir(), "nope.jsonl"), 0)
	_, err := tr.Connect(context.Background(), nil)
	assert.ErrorContains(t, err, "open recording")
}

func TestReplayTransport_DelayHonoursCancel(t *testing.T) {
	tr := NewReaderReplay(strings.NewReader("a\nb\n"))
	tr.delay = time.Hour
	conn, err := tr.Connect(context.Background(), nil)
	require.NoError(t, err)

	_, err = conn.ReadNext(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = conn.ReadNext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func klineFrame(minute int, close float64) string {
	start := time.Unix(1_700_000_000, 0).Add(time.Duration(minute) * time.Minute).UnixMilli()
	px := fmt.Sprintf("%g", close)
	return fmt.Sprintf(`{"topic":"kline.1.BTCUSD","type":"snapshot","ts":%d,"data":[{"start":%d,"open":"%s","close":"%s","high":"%s","low":"%s","volume":"1","confirm":true}]}`,
		start, start, px, px, px, px)
}

func TestReplay_PaperRoundTrip(t *testing.T) {
	closes := []float64{40, 40, 40, 40, 25, 60, 45}
	lines := []string{`{"success":true,"op":"subscribe"}`}
	for i, c := range closes {
		lines = append(lines, klineFrame(i, c))
	}
	lines = append(lines, `{"topic":"tickers.BTCUSD","data":{}}`)

	p := strategy.RSIParamsFrom(strategy.Settings{History: 4, Length: 2})
	p.Oscillator = func(closes []float64, _ int) float64 { return closes[len(closes)-1] }
	strat, err := strategy.NewRSI(p)
	require.NoError(t, err)

	journal, err := storage.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer journal.Close()

	s, err := engine.NewSession(engine.DefaultConfig(), strat, engine.Deps{
		Transport: NewReaderReplay(strings.NewReader(strings.Join(lines, "\n"))),
		Codec:     bybit.NewCodec(50, false),
		Gateway:   execution.NewPaperGateway(4),
		Journal:   journal,
	})
	require.NoError(t, err)

	err = engine.Run(context.Background(), s, Once{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrStreamClosed))

	assert.True(t, s.Tracker().IsFlat())
	assert.False(t, s.Tracker().HasPending())
	assert.Equal(t, 7, s.Store().ClosedCount("1"))

	entries, err := journal.Load(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	types := []event.Type{entries[0].Type, entries[1].Type, entries[2].Type, entries[3].Type}
	assert.Equal(t, []event.Type{event.EvOrderAction, event.EvExecution, event.EvOrderAction, event.EvExecution}, types)

	ev, err := entries[0].Event()
	require.NoError(t, err)
	entry := ev.(*event.OrderAction)
	assert.Equal(t, domain.SideBuy, entry.Request.Side)
	assert.True(t, entry.Request.RefPrice.Equal(decimal.NewFromInt(25)))

	ev, err = entries[2].Event()
	require.NoError(t, err)
	exit := ev.(*event.OrderAction)
	assert.Equal(t, domain.SideSell, exit.Request.Side)
	assert.True(t, exit.Request.ReduceOnly)
	assert.True(t, exit.Request.RefPrice.Equal(decimal.NewFromInt(45)))

	// the journal alone rebuilds the same final position
	tr := position.NewTracker("BTCUSD", 0.03)
	applied, err := RestorePosition(context.Background(), journal, tr)
	require.NoError(t, err)
	assert.Equal(t, 4, applied)
	assert.True(t, tr.IsFlat())
}

func TestRestorePosition_OpenLong(t *testing.T) {
	journal, err := storage.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer journal.Close()
	ctx := context.Background()

	req := domain.OrderRequest{
		LinkID: "l1", Symbol: "BTCUSD", Side: domain.SideBuy, Type: domain.OrderTypeLimit,
		Purpose: domain.PurposeEntry, Qty: decimal.NewFromInt(100), RefPrice: decimal.NewFromInt(100),
	}
	h := domain.OrderHandle{OrderID: "o1", LinkID: "l1"}
	require.NoError(t, journal.Record(ctx, &event.OrderAction{Action: "place", Request: req, Handle: h}))
	require.NoError(t, journal.Record(ctx, &event.OrderAction{Action: "place", Request: domain.OrderRequest{LinkID: "bad"}, Error: "rejected"}))
	require.NoError(t, journal.Record(ctx, &event.ExecutionEvent{Executions: []domain.Execution{{
		OrderID: "o1", LinkID: "l1", Symbol: "BTCUSD", Side: domain.SideBuy, Kind: domain.ExecFill,
		Price: decimal.NewFromInt(105), Qty: decimal.NewFromInt(100),
	}}}))

	tr := position.NewTracker("BTCUSD", 0.03)
	applied, err := RestorePosition(ctx, journal, tr)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.True(t, tr.IsLong())
	assert.True(t, tr.Position().EntryPrice.Equal(decimal.NewFromInt(105)))
	assert.False(t, tr.HasPending())
}
