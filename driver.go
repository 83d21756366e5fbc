package telepeer

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/unkn0wn-root/telepeer/packet"
	"github.com/unkn0wn-root/telepeer/seqstore"
)

const (
	defaultIterations = 10
	defaultVectorLen  = 20
	defaultLabel      = "telepeer demo"
	defaultPause      = 50 * time.Millisecond
)

// RunOptions configure Run. Zero values take the defaults noted per field.
type RunOptions struct {
	Iterations int           // 0 => 10
	VectorLen  int           // samples per record; 0 => 20, negative => none
	Label      string        // "" => "telepeer demo"
	Pause      time.Duration // between iterations; 0 => 50ms, negative => none
	Session    string        // sequence namespace; "" => "default"

	Sequencer seqstore.Store   // nil => a fresh in-process store
	Rand      *rand.Rand       // sample source; nil => seeded from the clock
	Clock     func() time.Time // record timestamps; nil => time.Now
	Logger    Logger           // if nil, NopLogger is used

	// OnResult, if set, sees every completed exchange in order.
	OnResult func(iteration int, res Result)
}

// Summary describes a finished run.
type Summary struct {
	Completed     int
	FirstSequence uint64
	LastSequence  uint64
	RequestBytes  int64
	Elapsed       time.Duration // wall time including pauses
	Exchanging    time.Duration // sum of exchange totals
	Slowest       time.Duration
}

// Mean is the average exchange duration, zero when nothing completed.
func (s Summary) Mean() time.Duration {
	if s.Completed == 0 {
		return 0
	}
	return s.Exchanging / time.Duration(s.Completed)
}

// Run drives p through opts.Iterations exchanges. Each iteration takes the
// next sequence of the session, stamps the current time, draws fresh samples
// and runs one Exchange. The first failure stops the run and is returned
// along with what completed before it.
func Run(ctx context.Context, p Peer, opts RunOptions) (Summary, error) {
	n := coalesce[int](opts.Iterations, defaultIterations)
	veclen := coalesce[int](opts.VectorLen, defaultVectorLen)
	label := coalesce[string](opts.Label, defaultLabel)
	pause := coalesce[time.Duration](opts.Pause, defaultPause)
	session := coalesce[string](opts.Session, defaultSession)
	log := coalesce[Logger](opts.Logger, NopLogger{})
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(clock().UnixNano()))
	}
	seqs := opts.Sequencer
	if seqs == nil {
		local := seqstore.NewLocal(0, 0)
		defer local.Close(ctx)
		seqs = local
	}

	var sum Summary
	start := time.Now()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = time.Since(start)
			return sum, err
		}
		seq, err := seqs.Next(ctx, session)
		if err != nil {
			sum.Elapsed = time.Since(start)
			return sum, fmt.Errorf("telepeer: next sequence: %w", err)
		}
		rec := packet.New(seq, packet.Timestamp(clock()), label, packet.Samples(rng, veclen))

		res, err := p.Exchange(ctx, rec)
		if err != nil {
			log.Error("run stopped", Fields{"iteration": i, "seq": seq, "err": err})
			sum.Elapsed = time.Since(start)
			return sum, err
		}

		if sum.Completed == 0 {
			sum.FirstSequence = seq
		}
		sum.Completed++
		sum.LastSequence = seq
		sum.RequestBytes += int64(res.RequestBytes)
		sum.Exchanging += res.Timings.Total
		if res.Timings.Total > sum.Slowest {
			sum.Slowest = res.Timings.Total
		}
		log.Info("exchange", Fields{"iteration": i, "seq": seq, "bytes": res.RequestBytes, "took": res.Timings.Total})
		if opts.OnResult != nil {
			opts.OnResult(i, res)
		}

		if pause > 0 && i < n-1 {
			t := time.NewTimer(pause)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				sum.Elapsed = time.Since(start)
				return sum, ctx.Err()
			}
		}
	}
	sum.Elapsed = time.Since(start)
	return sum, nil
}
