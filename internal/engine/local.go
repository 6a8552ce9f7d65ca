package engine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tengenlabs/tengen/internal/board"
	"github.com/tengenlabs/tengen/internal/circuitbreaker"
	"github.com/tengenlabs/tengen/internal/monitoring"
	"github.com/tengenlabs/tengen/internal/record"
)

// LocalConfig configures the subprocess runner.
type LocalConfig struct {
	// Bin is the engine binary (default "katago")
	Bin string

	// Model is the network weights file (required)
	Model string

	// Config is the engine configuration file (required)
	Config string

	// Breaker guards engine invocations when set
	Breaker *circuitbreaker.CircuitBreaker

	// Metrics records per-call latency when set
	Metrics *monitoring.Metrics
}

// Local runs the engine binary next to the bot. Analysis mode takes the
// whole query on stdin and exits once stdin closes; GTP mode gets a fixed
// command script the same way. Both run under the caller's context, which
// kills the subprocess on cancellation.
type Local struct {
	cfg    LocalConfig
	logger *log.Logger
}

// NewLocal creates a subprocess engine runner.
func NewLocal(cfg LocalConfig) *Local {
	if cfg.Bin == "" {
		cfg.Bin = "katago"
	}
	return &Local{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[Engine] ", log.LstdFlags),
	}
}

// Review analyzes every position of the record, empty board through final
// position, and returns one stat per analyzed node ordered by move number.
func (l *Local) Review(ctx context.Context, rec *record.Record, maxVisits int) ([]MoveStat, error) {
	started := time.Now()
	stats, err := l.review(ctx, rec, maxVisits)
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordEngineCall("review", err, time.Since(started).Seconds())
	}
	return stats, err
}

func (l *Local) review(ctx context.Context, rec *record.Record, maxVisits int) ([]MoveStat, error) {
	moves := rec.Moves()
	query := buildQuery(rec, uuid.NewString(), maxVisits, sequentialTurns(len(moves)+1), false)

	l.logger.Printf("🚀 Review analysis: %d moves, %d visits", len(moves), maxVisits)
	responses, err := l.runAnalysis(ctx, query)
	if err != nil {
		return nil, err
	}
	l.logger.Printf("✅ Review analysis done: %d positions", len(responses))
	return deriveStats(responses, moves), nil
}

// Evaluate analyzes only the final position with a reduced visit budget
// and reports the black-perspective winrate, point lead, and territory.
func (l *Local) Evaluate(ctx context.Context, rec *record.Record, maxVisits int) (*Evaluation, error) {
	started := time.Now()
	ev, err := l.evaluate(ctx, rec, maxVisits)
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordEngineCall("evaluate", err, time.Since(started).Seconds())
	}
	return ev, err
}

func (l *Local) evaluate(ctx context.Context, rec *record.Record, maxVisits int) (*Evaluation, error) {
	moves := rec.Moves()
	query := buildQuery(rec, uuid.NewString(), maxVisits, []int{len(moves)}, true)

	l.logger.Printf("🚀 Evaluation: position after %d moves, %d visits", len(moves), maxVisits)
	responses, err := l.runAnalysis(ctx, query)
	if err != nil {
		return nil, err
	}
	return digestEvaluation(responses[len(responses)-1]), nil
}

// GenMove replays the record through a GTP session and asks the engine
// for side's next move. Pass and resign come back as ErrDeclined.
func (l *Local) GenMove(ctx context.Context, rec *record.Record, side board.Color, maxVisits int) (board.Coord, error) {
	started := time.Now()
	coord, err := l.genMove(ctx, rec, side, maxVisits)
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordEngineCall("genmove", err, time.Since(started).Seconds())
	}
	return coord, err
}

func (l *Local) genMove(ctx context.Context, rec *record.Record, side board.Color, maxVisits int) (board.Coord, error) {
	script := buildGTPScript(rec, side)

	args := []string{"gtp", "-config", l.cfg.Config, "-model", l.cfg.Model}
	if maxVisits > 0 {
		args = append(args, "-override-config", fmt.Sprintf("maxVisits=%d", maxVisits))
	}

	l.logger.Printf("🚀 GenMove for %s after %d moves", side, rec.MoveCount())
	out, err := l.run(ctx, bytes.NewReader([]byte(script)), args...)
	if err != nil {
		return board.Coord{}, err
	}

	move, err := parseGenMoveReply(out)
	if err != nil {
		return board.Coord{}, err
	}

	coord, err := board.ParseCoord(move)
	if err != nil {
		return board.Coord{}, fmt.Errorf("engine returned unusable move %q: %w", move, err)
	}
	l.logger.Printf("✅ Engine plays %s", coord)
	return coord, nil
}

func (l *Local) runAnalysis(ctx context.Context, query map[string]interface{}) ([]response, error) {
	line, err := marshalQuery(query)
	if err != nil {
		return nil, err
	}

	out, err := l.run(ctx, bytes.NewReader(line), "analysis", "-config", l.cfg.Config, "-model", l.cfg.Model)
	if err != nil {
		return nil, err
	}
	return parseResponses(strings.NewReader(out))
}

// run launches the engine, feeds stdin, and waits. The circuit breaker
// wraps the whole subprocess run: a crashing or unresponsive engine trips
// it the same way a failing HTTP dependency would.
func (l *Local) run(ctx context.Context, stdin *bytes.Reader, args ...string) (string, error) {
	invoke := func() (interface{}, error) {
		cmd := exec.CommandContext(ctx, l.cfg.Bin, args...)
		cmd.Stdin = stdin

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("engine %s %s: %w: %s", l.cfg.Bin, args[0], err, tail(stderr.String(), 512))
		}
		return stdout.String(), nil
	}

	var (
		out interface{}
		err error
	)
	if l.cfg.Breaker != nil {
		out, err = l.cfg.Breaker.Execute(invoke)
	} else {
		out, err = invoke()
	}
	if err != nil {
		l.logger.Printf("❌ Engine %s failed: %v", args[0], err)
		return "", err
	}
	return out.(string), nil
}

// tail keeps the last n bytes of s for error messages; engine stderr is
// mostly progress chatter and the failure reason comes last.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
