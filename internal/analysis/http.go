package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// inputTimeline is the tap speed the oracle assumes, one tap every four
// frames.
const inputTimeline = "X..."

// HTTPOracle queries a StackRabbit-style evaluation server. Positions are
// sent as query parameters; boards as 200 characters of '0' and '1'.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOracle creates an oracle for the server at baseURL.
func NewHTTPOracle(baseURL string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type wireMove struct {
	Rotation int     `json:"rotation"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Eval     float64 `json:"eval"`
}

type movelistResponse struct {
	Moves []wireMove `json:"moves"`
}

type rateResponse struct {
	Eval float64 `json:"eval"`
}

// Evaluate implements Oracle.
func (o *HTTPOracle) Evaluate(ctx context.Context, pos Position) (Evaluation, error) {
	var resp movelistResponse
	if err := o.get(ctx, "engine-movelist", positionQuery(pos), &resp); err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{Moves: make([]RatedMove, 0, len(resp.Moves))}
	for _, m := range resp.Moves {
		ev.Moves = append(ev.Moves, RatedMove{
			Placement: tetris.NewMoveable(pos.Current, m.Rotation, m.X, m.Y),
			Eval:      m.Eval,
		})
	}
	return ev, nil
}

// RatePlacement implements Oracle. The placement is sent as the board it
// leaves behind after line clears.
func (o *HTTPOracle) RatePlacement(ctx context.Context, pos Position, placement tetris.MoveableTetromino) (float64, error) {
	after := tetris.NewBoard()
	if pos.Board != nil {
		after = pos.Board.Copy()
	}
	placement.BlitToBoard(after)
	after.ProcessLineClears()

	q := positionQuery(pos)
	q.Set("secondBoard", encodeBoard(after))
	var resp rateResponse
	if err := o.get(ctx, "rate-move", q, &resp); err != nil {
		return 0, err
	}
	return resp.Eval, nil
}

func (o *HTTPOracle) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	u := o.baseURL + "/" + endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("analysis: cannot build request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("analysis: %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis: %s returned %s", endpoint, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("analysis: cannot decode %s response: %w", endpoint, err)
	}
	return nil
}

func positionQuery(pos Position) url.Values {
	board := pos.Board
	if board == nil {
		board = tetris.NewBoard()
	}
	q := url.Values{}
	q.Set("board", encodeBoard(board))
	q.Set("currentPiece", pos.Current.String())
	q.Set("nextPiece", pos.Next.String())
	q.Set("level", strconv.Itoa(pos.Level))
	q.Set("lines", strconv.Itoa(pos.Lines))
	q.Set("inputFrameTimeline", inputTimeline)
	return q
}

func encodeBoard(b *tetris.Board) string {
	var sb strings.Builder
	sb.Grow(tetris.Width * tetris.Height)
	for y := 0; y < tetris.Height; y++ {
		for x := 0; x < tetris.Width; x++ {
			if b.Exists(x, y) {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return sb.String()
}
