package portfoliostate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mkorolev/coindeck/internal/domain"
)

const defaultStateDir = "./state"

// Store persists portfolio snapshots so restarts keep cash, open
// positions and the trade history.
type Store struct {
	path string
}

func stateDir() string {
	if dir := os.Getenv("COINDECK_STATE_DIR"); dir != "" {
		return dir
	}
	return defaultStateDir
}

// NewStore creates a portfolio state store under the state directory.
func NewStore(name string) (*Store, error) {
	dir := stateDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create portfolio state dir")
	}
	if name == "" {
		name = "portfolio"
	}
	return &Store{path: filepath.Join(dir, name+".json")}, nil
}

// State is the persisted form of a portfolio snapshot. Decimals are
// stored as strings to survive round-trips exactly.
type State struct {
	Cash          string           `json:"cash"`
	HighWaterMark string           `json:"highWaterMark"`
	Positions     []StoredPosition `json:"positions"`
	Trades        []StoredTrade    `json:"trades"`
	SavedAt       time.Time        `json:"savedAt"`
}

// StoredPosition is a serializable domain.Position.
type StoredPosition struct {
	Symbol       string              `json:"symbol"`
	Quantity     string              `json:"quantity"`
	EntryPrice   string              `json:"entryPrice"`
	CurrentPrice string              `json:"currentPrice"`
	EntryScore   float64             `json:"entryScore"`
	Tier         domain.PositionTier `json:"tier"`
	OpenedAt     time.Time           `json:"openedAt"`
	RealizedPnL  string              `json:"realizedPnl"`
}

// StoredTrade is a serializable domain.Trade.
type StoredTrade struct {
	ID         string             `json:"id"`
	Symbol     string             `json:"symbol"`
	Action     domain.TradeAction `json:"action"`
	Price      string             `json:"price"`
	Quantity   string             `json:"quantity"`
	Amount     string             `json:"amount"`
	Fee        string             `json:"fee"`
	ProfitRate float64            `json:"profitRate"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Load reads the persisted portfolio. A missing or empty file yields
// nil state and no error.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read portfolio state")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode portfolio state")
	}
	return &state, nil
}

// Save writes the portfolio state atomically via a temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode portfolio state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write portfolio state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist portfolio state")
	}
	return nil
}

// FromSnapshot converts a live snapshot into its stored form.
func FromSnapshot(snapshot domain.PortfolioSnapshot) State {
	state := State{
		Cash:          snapshot.Cash.String(),
		HighWaterMark: snapshot.HighWaterMark.String(),
		SavedAt:       snapshot.LastUpdated,
	}
	for _, p := range snapshot.Positions {
		state.Positions = append(state.Positions, StoredPosition{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity.String(),
			EntryPrice:   p.EntryPrice.String(),
			CurrentPrice: p.CurrentPrice.String(),
			EntryScore:   p.EntryScore,
			Tier:         p.Tier,
			OpenedAt:     p.OpenedAt,
			RealizedPnL:  p.RealizedPnL.String(),
		})
	}
	for _, t := range snapshot.Trades {
		state.Trades = append(state.Trades, StoredTrade{
			ID:         t.ID,
			Symbol:     t.Symbol,
			Action:     t.Action,
			Price:      t.Price.String(),
			Quantity:   t.Quantity.String(),
			Amount:     t.Amount.String(),
			Fee:        t.Fee.String(),
			ProfitRate: t.ProfitRate,
			Timestamp:  t.Timestamp,
		})
	}
	return state
}

// ToSnapshot reconstructs a portfolio snapshot from stored state.
func (st *State) ToSnapshot() (domain.PortfolioSnapshot, error) {
	if st == nil {
		return domain.PortfolioSnapshot{}, nil
	}

	cash, err := decimal.NewFromString(st.Cash)
	if err != nil {
		return domain.PortfolioSnapshot{}, errors.Wrap(err, "decode cash")
	}
	highWater, err := decimalOrZero(st.HighWaterMark)
	if err != nil {
		return domain.PortfolioSnapshot{}, errors.Wrap(err, "decode high water mark")
	}

	snapshot := domain.PortfolioSnapshot{
		Cash:          cash,
		HighWaterMark: highWater,
		LastUpdated:   st.SavedAt,
	}

	for _, sp := range st.Positions {
		pos, err := sp.toPosition()
		if err != nil {
			return domain.PortfolioSnapshot{}, errors.Wrapf(err, "decode position %s", sp.Symbol)
		}
		snapshot.Positions = append(snapshot.Positions, pos)
	}
	for _, str := range st.Trades {
		trade, err := str.toTrade()
		if err != nil {
			return domain.PortfolioSnapshot{}, errors.Wrapf(err, "decode trade %s", str.ID)
		}
		snapshot.Trades = append(snapshot.Trades, trade)
	}

	total := snapshot.Cash
	for _, p := range snapshot.Positions {
		total = total.Add(p.MarketValue())
	}
	snapshot.TotalValue = total
	return snapshot, nil
}

func (sp StoredPosition) toPosition() (domain.Position, error) {
	quantity, err := decimal.NewFromString(sp.Quantity)
	if err != nil {
		return domain.Position{}, errors.Wrap(err, "quantity")
	}
	entry, err := decimal.NewFromString(sp.EntryPrice)
	if err != nil {
		return domain.Position{}, errors.Wrap(err, "entry price")
	}
	current, err := decimalOrZero(sp.CurrentPrice)
	if err != nil {
		return domain.Position{}, errors.Wrap(err, "current price")
	}
	realized, err := decimalOrZero(sp.RealizedPnL)
	if err != nil {
		return domain.Position{}, errors.Wrap(err, "realized pnl")
	}

	return domain.Position{
		Symbol:       sp.Symbol,
		Quantity:     quantity,
		EntryPrice:   entry,
		CurrentPrice: current,
		EntryScore:   sp.EntryScore,
		Tier:         sp.Tier,
		OpenedAt:     sp.OpenedAt,
		RealizedPnL:  realized,
	}, nil
}

func (st StoredTrade) toTrade() (domain.Trade, error) {
	price, err := decimal.NewFromString(st.Price)
	if err != nil {
		return domain.Trade{}, errors.Wrap(err, "price")
	}
	quantity, err := decimal.NewFromString(st.Quantity)
	if err != nil {
		return domain.Trade{}, errors.Wrap(err, "quantity")
	}
	amount, err := decimalOrZero(st.Amount)
	if err != nil {
		return domain.Trade{}, errors.Wrap(err, "amount")
	}
	fee, err := decimalOrZero(st.Fee)
	if err != nil {
		return domain.Trade{}, errors.Wrap(err, "fee")
	}

	return domain.Trade{
		ID:         st.ID,
		Symbol:     st.Symbol,
		Action:     st.Action,
		Price:      price,
		Quantity:   quantity,
		Amount:     amount,
		Fee:        fee,
		ProfitRate: st.ProfitRate,
		Timestamp:  st.Timestamp,
	}, nil
}

func decimalOrZero(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
