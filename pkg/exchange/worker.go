package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockexchange/pkg/exchange/book"
)

// worker is the single owner of one symbol's order book. All mutation
// flows through its command channel, so the book itself needs no locks;
// commands from a single sender are processed in send order.
type worker struct {
	symbol string
	book   *book.Book
	cmds   chan any
	out    chan<- workerEvent
	log    *zap.SugaredLogger
}

// workerEvent carries match outcomes back to the coordinator, which
// republishes them on the event bus.
type workerEvent struct {
	symbol  string
	matches []book.Match
	cancel  *book.Cancellation
}

// Commands the coordinator forwards to a worker. Replies are the
// original caller's channels, passed through so the coordinator never
// waits on a worker.

type placeCmd struct {
	order book.Order
	reply chan error
}

type cancelCmd struct {
	id    uuid.UUID
	reply chan error
}

type snapshotCmd struct {
	depth int
	reply chan snapshotReply
}

func newWorker(symbol string, queue int, out chan<- workerEvent, log *zap.SugaredLogger) *worker {
	return &worker{
		symbol: symbol,
		book:   book.New(symbol),
		cmds:   make(chan any, queue),
		out:    out,
		log:    log,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go w.run(ctx, wg)
}

// submit forwards a command without blocking. A full queue is a routing
// failure for that command only.
func (w *worker) submit(c any) error {
	select {
	case w.cmds <- c:
		return nil
	default:
		return fmt.Errorf("worker %s queue full: %w", w.symbol, ErrRoutingFailure)
	}
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-w.cmds:
			switch c := c.(type) {
			case placeCmd:
				matches, err := w.book.Add(c.order)
				c.reply <- err
				if len(matches) > 0 {
					w.emit(ctx, workerEvent{symbol: w.symbol, matches: matches})
				}

			case cancelCmd:
				notice, ok := w.book.Cancel(c.id)
				if !ok {
					c.reply <- fmt.Errorf("%s: %w", c.id, ErrUnknownOrder)
					continue
				}
				c.reply <- nil
				w.emit(ctx, workerEvent{symbol: w.symbol, cancel: &notice})

			case snapshotCmd:
				c.reply <- snapshotReply{snap: w.book.Snapshot(c.depth)}

			default:
				w.log.Errorw("worker_unknown_command", "symbol", w.symbol, "cmd", fmt.Sprintf("%T", c))
			}
		}
	}
}

func (w *worker) emit(ctx context.Context, ev workerEvent) {
	select {
	case w.out <- ev:
	case <-ctx.Done():
	}
}
