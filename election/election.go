// Package election runs leadership elections. Each election walks through
// nomination, campaign and voting phases derived from the clock, and on
// finalization rotates the position's leadership when quorum is met.
package election

import (
	"fmt"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/auth"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/reentry"
	"github.com/blockberries/dao/types"
)

// ModuleAddress holds posted nomination stakes.
var ModuleAddress = types.ModuleAddress("election")

// NeutralScore is the performance score a new term starts with.
const NeutralScore = 50

var (
	ErrUnknownElection = fmt.Errorf("%w: unknown election", dao.ErrInvalidInput)
	ErrNotCandidate    = fmt.Errorf("%w: not a candidate", dao.ErrInvalidInput)
	ErrPositionHeld    = fmt.Errorf("%w: position is not vacant", dao.ErrInvalidState)
	ErrTooManyOpen     = fmt.Errorf("%w: concurrent election limit reached", dao.ErrInvalidState)
	ErrNotHolder       = fmt.Errorf("%w: caller does not hold the position", dao.ErrUnauthorized)
)

// WeightSource is the stake-derived voting weight of an identity.
type WeightSource interface {
	EffectiveVotingWeight(id types.Address) uint64
}

// Engine executes election operations against a State.
type Engine struct {
	state      *State
	token      ledger.ValueLedger
	authz      auth.Authorizer
	weights    WeightSource
	finalizing *reentry.Guard
}

// New binds an engine to state. When weights is nil votes are weighed by
// token balance.
func New(state *State, token ledger.ValueLedger, authz auth.Authorizer, weights WeightSource) *Engine {
	return &Engine{
		state:      state,
		token:      token,
		authz:      authz,
		weights:    weights,
		finalizing: reentry.New("finalize election"),
	}
}

func (e *Engine) election(id uint64) (*Election, error) {
	if id == 0 || id > uint64(len(e.state.Elections)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownElection, id)
	}
	return &e.state.Elections[id-1], nil
}

func requirePhase(el *Election, now uint64, want ...Phase) error {
	got := el.PhaseAt(now)
	for _, w := range want {
		if got == w {
			return nil
		}
	}
	return fmt.Errorf("%w: election %d is in %s", dao.ErrInvalidState, el.ID, got)
}

func electionAttr(id uint64) types.EventAttribute { return types.AttrUint("election_id", id) }

// Vacant reports whether nobody holds position at now.
func (e *Engine) Vacant(position string, now uint64) bool {
	l, ok := e.CurrentLeadership(position)
	return !ok || !l.HeldAt(now)
}

// CreateElection schedules an election for a vacant position.
func (e *Engine) CreateElection(call types.Call, position string, startsAt uint64) (uint64, error) {
	if err := auth.Require(e.authz, auth.RoleElectionAdmin, call.Caller); err != nil {
		return 0, err
	}
	now := call.Now()
	switch {
	case position == "":
		return 0, fmt.Errorf("%w: empty position", dao.ErrInvalidInput)
	case startsAt < now:
		return 0, fmt.Errorf("%w: election starts in the past", dao.ErrInvalidInput)
	case !e.Vacant(position, now):
		return 0, fmt.Errorf("%w: %s", ErrPositionHeld, position)
	}
	open := 0
	for _, el := range e.state.Elections {
		if !el.Open() {
			continue
		}
		if el.Position == position {
			return 0, fmt.Errorf("%w: election %d already running for %s", dao.ErrInvalidState, el.ID, position)
		}
		open++
	}
	p := e.state.Params
	if open >= int(p.MaxConcurrentElections) {
		return 0, ErrTooManyOpen
	}

	id := uint64(len(e.state.Elections)) + 1
	el := Election{
		ID:            id,
		Position:      position,
		CreatedBy:     call.Caller,
		StartsAt:      startsAt,
		NominationEnd: startsAt + p.NominationDuration,
	}
	el.CampaignEnd = el.NominationEnd + p.CampaignDuration
	el.VotingEnd = el.CampaignEnd + p.VotingDuration
	e.state.Elections = append(e.state.Elections, el)
	call.Emit("election_created",
		electionAttr(id),
		types.Attr("position", position),
		types.AttrUint("starts_at", startsAt),
		types.AttrUint("voting_end", el.VotingEnd))
	return id, nil
}

// NominateCandidate enters the caller into an election and takes the
// nomination stake from it.
func (e *Engine) NominateCandidate(call types.Call, id uint64, name, platform string) error {
	el, err := e.election(id)
	if err != nil {
		return err
	}
	now := call.Now()
	if err := requirePhase(el, now, PhaseNomination); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: empty candidate name", dao.ErrInvalidInput)
	}
	if _, ok := el.candidate(call.Caller); ok {
		return fmt.Errorf("%w: already nominated in election %d", dao.ErrAlreadyDone, id)
	}
	p := e.state.Params
	if bal := e.token.BalanceOf(call.Caller); bal < p.MinCandidateBalance {
		return fmt.Errorf("%w: balance %d below %d", dao.ErrInsufficientFunds, bal, p.MinCandidateBalance)
	}
	if p.NominationStake > 0 {
		if err := e.token.TransferFrom(call.Caller, ModuleAddress, p.NominationStake); err != nil {
			return fmt.Errorf("nominate: %w", err)
		}
	}
	el.Candidates = append(el.Candidates, Candidate{
		Addr:        call.Caller,
		Name:        name,
		Platform:    platform,
		Stake:       p.NominationStake,
		Active:      true,
		NominatedAt: now,
	})
	call.Emit("candidate_nominated",
		electionAttr(id),
		types.Attr("candidate", call.Caller.String()),
		types.AttrAmount("stake", p.NominationStake))
	return nil
}

func (e *Engine) weightOf(id types.Address) uint64 {
	if e.weights != nil {
		return e.weights.EffectiveVotingWeight(id)
	}
	return e.token.BalanceOf(id)
}

// Vote casts the caller's weight for candidate.
func (e *Engine) Vote(call types.Call, id uint64, candidate types.Address) (uint64, error) {
	el, err := e.election(id)
	if err != nil {
		return 0, err
	}
	if err := requirePhase(el, call.Now(), PhaseVoting); err != nil {
		return 0, err
	}
	i, voted := e.state.findReceipt(id, call.Caller)
	if voted {
		return 0, dao.ErrAlreadyVoted
	}
	c, ok := el.candidate(candidate)
	if !ok || !c.Active {
		return 0, fmt.Errorf("%w: %s", ErrNotCandidate, candidate)
	}
	weight := e.weightOf(call.Caller)
	if weight == 0 {
		return 0, fmt.Errorf("%w: no voting weight", dao.ErrInsufficientWeight)
	}
	c.Votes += weight
	c.Supporters++
	el.TotalVotes += weight

	rs := e.state.Receipts
	rs = append(rs, Receipt{})
	copy(rs[i+1:], rs[i:])
	rs[i] = Receipt{ElectionID: id, Voter: call.Caller, Candidate: candidate, Weight: weight}
	e.state.Receipts = rs

	call.Emit("election_vote",
		electionAttr(id),
		types.Attr("voter", call.Caller.String()),
		types.Attr("candidate", candidate.String()),
		types.AttrAmount("weight", weight))
	return weight, nil
}

// QuorumVotes is QuorumPercentage of supply.
func QuorumVotes(supply uint64, pct uint32) uint64 {
	return supply/100*uint64(pct) + supply%100*uint64(pct)/100
}

// FinalizeElection closes an election whose voting has ended. With quorum
// and at least one candidate, the candidate with the most votes wins (the
// earliest nominee on ties) and keeps its stake posted; everyone else is
// refunded. Without quorum every candidate is refunded and leadership is
// unchanged.
func (e *Engine) FinalizeElection(call types.Call, id uint64) (types.Address, bool, error) {
	release, err := e.finalizing.Enter()
	if err != nil {
		return types.ZeroAddress, false, err
	}
	defer release()

	el, err := e.election(id)
	if err != nil {
		return types.ZeroAddress, false, err
	}
	if el.Finalized {
		return types.ZeroAddress, false, fmt.Errorf("%w: election %d finalized", dao.ErrAlreadyDone, id)
	}
	now := call.Now()
	if err := requirePhase(el, now, PhaseEnded); err != nil {
		return types.ZeroAddress, false, err
	}

	el.QuorumVotes = QuorumVotes(e.token.TotalSupply(), e.state.Params.QuorumPercentage)
	winner := -1
	if el.TotalVotes >= el.QuorumVotes {
		for i, c := range el.Candidates {
			if c.Active && (winner < 0 || c.Votes > el.Candidates[winner].Votes) {
				winner = i
			}
		}
	}
	el.Finalized = true
	el.ClosedAt = now
	if winner >= 0 {
		w := &el.Candidates[winner]
		w.Elected = true
		el.Winner = w.Addr
		el.HasWinner = true
		e.rotate(call, el.Position, w.Addr, id)
	}

	refunds := e.refundable(el, winner)
	call.Emit("election_finalized",
		electionAttr(id),
		types.Attr("position", el.Position),
		types.Attr("winner", el.Winner.String()),
		types.AttrAmount("total_votes", el.TotalVotes),
		types.AttrAmount("quorum_votes", el.QuorumVotes))
	if err := e.refund(call, id, refunds); err != nil {
		return types.ZeroAddress, false, err
	}
	return el.Winner, el.HasWinner, nil
}

type refund struct {
	to     types.Address
	amount uint64
}

// refundable marks every active candidate except the winner refunded and
// returns the payouts. Marking happens before any transfer.
func (e *Engine) refundable(el *Election, winner int) []refund {
	var out []refund
	for i := range el.Candidates {
		c := &el.Candidates[i]
		if i == winner || c.Refunded || !c.Active {
			continue
		}
		c.Refunded = true
		out = append(out, refund{to: c.Addr, amount: c.Stake})
	}
	return out
}

func (e *Engine) refund(call types.Call, id uint64, refunds []refund) error {
	for _, r := range refunds {
		if r.amount == 0 {
			continue
		}
		if err := e.token.Transfer(ModuleAddress, r.to, r.amount); err != nil {
			return fmt.Errorf("refund candidate stake: %w", err)
		}
		call.Emit("candidate_refunded",
			electionAttr(id),
			types.Attr("candidate", r.to.String()),
			types.AttrAmount("amount", r.amount))
	}
	return nil
}

// rotate installs holder as the new term of position and archives the
// term it replaces.
func (e *Engine) rotate(call types.Call, position string, holder types.Address, electionID uint64) {
	now := call.Now()
	st := e.state
	term := Leadership{
		Position:   position,
		Holder:     holder,
		ElectionID: electionID,
		TermStart:  now,
		TermEnd:    now + st.Params.TermLength,
		Score:      NeutralScore,
		Active:     true,
	}
	i, ok := st.findLeader(position)
	if ok {
		if old := &st.Leaders[i]; old.Active {
			old.Active = false
			old.EndedAt = now
			st.History = append(st.History, *old)
		}
		st.Leaders[i] = term
	} else {
		st.Leaders = append(st.Leaders, Leadership{})
		copy(st.Leaders[i+1:], st.Leaders[i:])
		st.Leaders[i] = term
	}
	call.Emit("leadership_rotated",
		types.Attr("position", position),
		types.Attr("holder", holder.String()),
		types.AttrUint("term_end", term.TermEnd))
}

// WithdrawCandidacy deactivates the caller's candidacy and refunds its
// stake. Allowed until voting opens.
func (e *Engine) WithdrawCandidacy(call types.Call, id uint64) error {
	el, err := e.election(id)
	if err != nil {
		return err
	}
	if err := requirePhase(el, call.Now(), PhaseNomination, PhaseCampaign); err != nil {
		return err
	}
	c, ok := el.candidate(call.Caller)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCandidate, call.Caller)
	}
	if !c.Active {
		return fmt.Errorf("%w: candidacy withdrawn", dao.ErrAlreadyDone)
	}
	c.Active = false
	c.Refunded = true
	call.Emit("candidacy_withdrawn", electionAttr(id), types.Attr("candidate", call.Caller.String()))
	return e.refund(call, id, []refund{{to: c.Addr, amount: c.Stake}})
}

// ResignPosition ends the caller's term early and leaves the position
// vacant.
func (e *Engine) ResignPosition(call types.Call, position string) error {
	now := call.Now()
	i, ok := e.state.findLeader(position)
	if !ok || !e.state.Leaders[i].HeldAt(now) || e.state.Leaders[i].Holder != call.Caller {
		return fmt.Errorf("%w: %s", ErrNotHolder, position)
	}
	l := &e.state.Leaders[i]
	l.Active = false
	l.EndedAt = now
	e.state.History = append(e.state.History, *l)
	call.Emit("position_resigned", types.Attr("position", position), types.Attr("holder", call.Caller.String()))
	return nil
}

// CancelElection is the admin override for an election that has not
// ended. Every active candidate is refunded.
func (e *Engine) CancelElection(call types.Call, id uint64) error {
	if err := auth.Require(e.authz, auth.RoleElectionAdmin, call.Caller); err != nil {
		return err
	}
	el, err := e.election(id)
	if err != nil {
		return err
	}
	if err := requirePhase(el, call.Now(), PhaseNotStarted, PhaseNomination, PhaseCampaign, PhaseVoting); err != nil {
		return err
	}
	el.Cancelled = true
	el.ClosedAt = call.Now()
	refunds := e.refundable(el, -1)
	call.Emit("election_cancelled", electionAttr(id))
	return e.refund(call, id, refunds)
}

// UpdatePerformance sets the performance score of the current holder of
// position.
func (e *Engine) UpdatePerformance(call types.Call, position string, score uint8) error {
	if err := auth.Require(e.authz, auth.RoleElectionAdmin, call.Caller); err != nil {
		return err
	}
	if score > 100 {
		return fmt.Errorf("%w: score %d above 100", dao.ErrInvalidInput, score)
	}
	i, ok := e.state.findLeader(position)
	if !ok || !e.state.Leaders[i].HeldAt(call.Now()) {
		return fmt.Errorf("%w: %s is vacant", dao.ErrInvalidState, position)
	}
	e.state.Leaders[i].Score = score
	call.Emit("performance_updated", types.Attr("position", position), types.AttrUint("score", uint64(score)))
	return nil
}

// CurrentLeadership returns the latest term of position. The term may
// have ended; check HeldAt.
func (e *Engine) CurrentLeadership(position string) (Leadership, bool) {
	i, ok := e.state.findLeader(position)
	if !ok {
		return Leadership{}, false
	}
	return e.state.Leaders[i], true
}

// LeadershipHistory lists the ended terms of position, oldest first.
func (e *Engine) LeadershipHistory(position string) []Leadership {
	var out []Leadership
	for _, l := range e.state.History {
		if l.Position == position {
			out = append(out, l)
		}
	}
	return out
}

// Election returns a copy of election id.
func (e *Engine) Election(id uint64) (Election, error) {
	el, err := e.election(id)
	if err != nil {
		return Election{}, err
	}
	c := *el
	c.Candidates = append([]Candidate(nil), el.Candidates...)
	return c, nil
}

// Phase resolves the phase of election id at now.
func (e *Engine) Phase(id, now uint64) (Phase, error) {
	el, err := e.election(id)
	if err != nil {
		return 0, err
	}
	return el.PhaseAt(now), nil
}
