// Package treasury implements project funding: proposals approved by the
// treasury manager, milestone-gated releases verified by an auditor, an
// insurance pool skimmed from every funding, and distribution of project
// profit back to stakers.
package treasury

import (
	"fmt"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/auth"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/reentry"
	"github.com/blockberries/dao/types"
)

// ModuleAddress holds the treasury balance and the insurance pool.
var ModuleAddress = types.ModuleAddress("treasury")

var (
	ErrUnknownProject   = fmt.Errorf("%w: unknown project", dao.ErrInvalidInput)
	ErrUnknownMilestone = fmt.Errorf("%w: unknown milestone", dao.ErrInvalidInput)
	ErrTooManyProjects  = fmt.Errorf("%w: active project cap reached", dao.ErrInvalidState)
	ErrNotRecipient     = fmt.Errorf("%w: caller is not the project recipient", dao.ErrUnauthorized)
	ErrMilestoneSum     = fmt.Errorf("%w: milestones exceed requested amount", dao.ErrInvariantViolation)
	ErrNotFailing       = fmt.Errorf("%w: repayment deadline not passed and at least half returned", dao.ErrInvalidState)
	ErrNoRewardSink     = fmt.Errorf("%w: no reward pool to route profit to", dao.ErrInvalidState)
)

// RewardSink receives the staker and restaking shares of project profit.
type RewardSink interface {
	FundRewards(call types.Call, amount uint64) error
}

// Engine executes treasury operations against a State.
type Engine struct {
	state  *State
	token  ledger.ValueLedger
	authz  auth.Authorizer
	sink   RewardSink
	paying *reentry.Guard
}

// New binds an engine to state.
func New(state *State, token ledger.ValueLedger, authz auth.Authorizer, sink RewardSink) *Engine {
	return &Engine{
		state:  state,
		token:  token,
		authz:  authz,
		sink:   sink,
		paying: reentry.New("treasury payout"),
	}
}

func (e *Engine) project(id uint64) (*Project, error) {
	if id == 0 || id > uint64(len(e.state.Projects)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProject, id)
	}
	return &e.state.Projects[id-1], nil
}

func (p *Project) milestone(i uint32) (*Milestone, error) {
	if int(i) >= len(p.Milestones) {
		return nil, fmt.Errorf("%w: %d of project %d", ErrUnknownMilestone, i, p.ID)
	}
	return &p.Milestones[i], nil
}

func requireStatus(p *Project, want Status) error {
	if p.Status != want {
		return fmt.Errorf("%w: project %d is %s, want %s", dao.ErrInvalidState, p.ID, p.Status, want)
	}
	return nil
}

func projectAttr(id uint64) types.EventAttribute { return types.AttrUint("project_id", id) }

// Available is the balance not promised to active projects.
func (e *Engine) Available() uint64 {
	return e.state.Balance - min(e.state.Balance, e.state.Committed)
}

// Deposit adds the caller's tokens to the treasury balance.
func (e *Engine) Deposit(call types.Call, amount uint64) error {
	if amount == 0 {
		return dao.ErrZeroAmount
	}
	e.state.Balance += amount
	if err := e.token.TransferFrom(call.Caller, ModuleAddress, amount); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	call.Emit("treasury_deposit",
		types.Attr("from", call.Caller.String()),
		types.AttrAmount("amount", amount))
	return nil
}

// ProposeProject registers a funding request.
func (e *Engine) ProposeProject(call types.Call, recipient types.Address, category Category,
	amount uint64, expectedYieldBps uint32, repaymentDeadline uint64, title string) (uint64, error) {
	p := e.state.Params
	switch {
	case recipient.IsZero():
		return 0, dao.ErrZeroAddress
	case category >= categoryEnd:
		return 0, fmt.Errorf("%w: category %d", dao.ErrInvalidInput, category)
	case amount < p.MinProjectAmount || amount > p.MaxProjectAmount:
		return 0, fmt.Errorf("%w: amount %d outside [%d, %d]", dao.ErrInvalidInput, amount, p.MinProjectAmount, p.MaxProjectAmount)
	case repaymentDeadline <= call.Now():
		return 0, fmt.Errorf("%w: repayment deadline in the past", dao.ErrInvalidInput)
	case len(e.state.Active) >= int(p.MaxActiveProjects):
		return 0, ErrTooManyProjects
	}
	id := uint64(len(e.state.Projects)) + 1
	e.state.Projects = append(e.state.Projects, Project{
		ID:                id,
		Proposer:          call.Caller,
		Recipient:         recipient,
		Category:          category,
		Title:             title,
		Requested:         amount,
		ExpectedYieldBps:  expectedYieldBps,
		CreatedAt:         call.Now(),
		RepaymentDeadline: repaymentDeadline,
	})
	call.Emit("project_proposed",
		projectAttr(id),
		types.Attr("recipient", recipient.String()),
		types.Attr("category", category.String()),
		types.AttrAmount("amount", amount))
	return id, nil
}

// ApproveProject moves a proposed project to Approved and starts it.
func (e *Engine) ApproveProject(call types.Call, id uint64) error {
	if err := auth.Require(e.authz, auth.RoleTreasuryManager, call.Caller); err != nil {
		return err
	}
	p, err := e.project(id)
	if err != nil {
		return err
	}
	if err := requireStatus(p, StatusProposed); err != nil {
		return err
	}
	p.Status = StatusApproved
	p.StartedAt = call.Now()
	call.Emit("project_approved", projectAttr(id))
	return nil
}

// CancelProject withdraws a project that has not been funded.
func (e *Engine) CancelProject(call types.Call, id uint64) error {
	if err := auth.Require(e.authz, auth.RoleTreasuryManager, call.Caller); err != nil {
		return err
	}
	p, err := e.project(id)
	if err != nil {
		return err
	}
	if p.Status != StatusProposed && p.Status != StatusApproved {
		return fmt.Errorf("%w: project %d is %s", dao.ErrInvalidState, id, p.Status)
	}
	p.Status = StatusCancelled
	p.ClosedAt = call.Now()
	call.Emit("project_cancelled", projectAttr(id))
	return nil
}

// AddMilestone appends a milestone to an approved project. The recipient
// or a treasury manager may add milestones.
func (e *Engine) AddMilestone(call types.Call, id uint64, description string, amount, deadline uint64) (uint32, error) {
	p, err := e.project(id)
	if err != nil {
		return 0, err
	}
	if call.Caller != p.Recipient {
		if err := auth.Require(e.authz, auth.RoleTreasuryManager, call.Caller); err != nil {
			return 0, err
		}
	}
	if err := requireStatus(p, StatusApproved); err != nil {
		return 0, err
	}
	limit := e.state.Params.MaxMilestones
	switch {
	case amount == 0:
		return 0, dao.ErrZeroAmount
	case deadline <= call.Now():
		return 0, fmt.Errorf("%w: milestone deadline in the past", dao.ErrInvalidInput)
	case limit > 0 && len(p.Milestones) >= int(limit):
		return 0, fmt.Errorf("%w: at most %d milestones", dao.ErrInvalidInput, limit)
	}
	if total := p.MilestoneTotal(); total+amount > p.Requested || total+amount < total {
		return 0, fmt.Errorf("%w: %d + %d > %d", ErrMilestoneSum, total, amount, p.Requested)
	}
	p.Milestones = append(p.Milestones, Milestone{Description: description, Amount: amount, Deadline: deadline})
	index := uint32(len(p.Milestones) - 1)
	call.Emit("milestone_added",
		projectAttr(id),
		types.AttrUint("index", uint64(index)),
		types.AttrAmount("amount", amount))
	return index, nil
}

// FundProject commits the requested amount to an approved project and
// moves the insurance fee into the insurance pool.
func (e *Engine) FundProject(call types.Call, id uint64) error {
	if err := auth.Require(e.authz, auth.RoleTreasuryManager, call.Caller); err != nil {
		return err
	}
	p, err := e.project(id)
	if err != nil {
		return err
	}
	if err := requireStatus(p, StatusApproved); err != nil {
		return err
	}
	st := e.state
	if len(p.Milestones) == 0 {
		return fmt.Errorf("%w: project %d has no milestones", dao.ErrInvalidState, id)
	}
	if len(st.Active) >= int(st.Params.MaxActiveProjects) {
		return ErrTooManyProjects
	}
	fee := p.Requested/10_000*uint64(st.Params.InsuranceBps) + p.Requested%10_000*uint64(st.Params.InsuranceBps)/10_000
	if need, avail := p.Requested+fee, e.Available(); avail < need {
		return fmt.Errorf("%w: treasury has %d available, funding needs %d", dao.ErrInsufficientFunds, avail, need)
	}

	st.Balance -= fee
	st.InsurancePool += fee
	st.Committed += p.Requested
	p.Funded = p.Requested
	p.InsuranceFee = fee
	p.FundedAt = call.Now()
	p.Status = StatusActive
	st.addActive(id)
	call.Emit("project_funded",
		projectAttr(id),
		types.AttrAmount("amount", p.Funded),
		types.AttrAmount("insurance_fee", fee))
	return nil
}

// CompleteMilestone is the recipient's claim that a milestone is done.
func (e *Engine) CompleteMilestone(call types.Call, id uint64, index uint32) error {
	p, err := e.project(id)
	if err != nil {
		return err
	}
	if call.Caller != p.Recipient {
		return ErrNotRecipient
	}
	if err := requireStatus(p, StatusActive); err != nil {
		return err
	}
	m, err := p.milestone(index)
	if err != nil {
		return err
	}
	if m.Completed {
		return fmt.Errorf("%w: milestone %d completed", dao.ErrAlreadyDone, index)
	}
	if call.Now() > m.Deadline {
		return fmt.Errorf("%w: milestone %d deadline %d passed", dao.ErrInvalidState, index, m.Deadline)
	}
	m.Completed = true
	m.CompletedAt = call.Now()
	call.Emit("milestone_completed", projectAttr(id), types.AttrUint("index", uint64(index)))
	return nil
}

// ReleaseMilestoneFunds pays a completed milestone to the recipient.
func (e *Engine) ReleaseMilestoneFunds(call types.Call, id uint64, index uint32) error {
	if err := auth.Require(e.authz, auth.RoleAuditor, call.Caller); err != nil {
		return err
	}
	release, err := e.paying.Enter()
	if err != nil {
		return err
	}
	defer release()

	p, err := e.project(id)
	if err != nil {
		return err
	}
	if err := requireStatus(p, StatusActive); err != nil {
		return err
	}
	m, err := p.milestone(index)
	if err != nil {
		return err
	}
	if !m.Completed {
		return fmt.Errorf("%w: milestone %d not completed", dao.ErrInvalidState, index)
	}
	if m.Released {
		return fmt.Errorf("%w: milestone %d released", dao.ErrAlreadyDone, index)
	}
	st := e.state
	if st.Balance < m.Amount {
		return fmt.Errorf("%w: treasury balance %d below %d", dao.ErrInsufficientFunds, st.Balance, m.Amount)
	}
	m.Released = true
	m.ReleasedAt = call.Now()
	st.Balance -= m.Amount
	st.Committed -= min(st.Committed, m.Amount)
	p.Disbursed += m.Amount
	amount, recipient := m.Amount, p.Recipient

	if err := e.token.Transfer(ModuleAddress, recipient, amount); err != nil {
		return fmt.Errorf("release milestone: %w", err)
	}
	call.Emit("milestone_released",
		projectAttr(id),
		types.AttrUint("index", uint64(index)),
		types.Attr("recipient", recipient.String()),
		types.AttrAmount("amount", amount))
	return nil
}

// ReturnFunds is the recipient paying back into the treasury. Once the
// cumulative return reaches the funded amount the project completes and
// its profit is distributed.
func (e *Engine) ReturnFunds(call types.Call, id uint64, amount uint64) error {
	if amount == 0 {
		return dao.ErrZeroAmount
	}
	p, err := e.project(id)
	if err != nil {
		return err
	}
	if call.Caller != p.Recipient {
		return ErrNotRecipient
	}
	if err := requireStatus(p, StatusActive); err != nil {
		return err
	}
	release, err := e.paying.Enter()
	if err != nil {
		return err
	}
	defer release()

	st := e.state
	p.Returned += amount
	st.Balance += amount
	if err := e.token.TransferFrom(call.Caller, ModuleAddress, amount); err != nil {
		return fmt.Errorf("return funds: %w", err)
	}
	call.Emit("funds_returned",
		projectAttr(id),
		types.AttrAmount("amount", amount),
		types.AttrAmount("returned", p.Returned))

	if p.Returned < p.Funded {
		return nil
	}
	return e.complete(call, p)
}

func (e *Engine) complete(call types.Call, p *Project) error {
	st := e.state
	profit := p.Returned - p.Funded
	p.Profit = profit
	if p.Funded > 0 {
		p.ActualYieldBps = uint32(min(profit/p.Funded*10_000+profit%p.Funded*10_000/p.Funded, 1<<32-1))
	}
	p.Status = StatusCompleted
	p.ClosedAt = call.Now()
	st.Committed -= min(st.Committed, p.Funded-p.Disbursed)
	st.removeActive(p.ID)
	st.TotalProfit += profit

	split := SplitProfit(profit)
	toStaking := split.ToStakers + split.ToRestaking
	call.Emit("project_completed",
		projectAttr(p.ID),
		types.AttrAmount("profit", profit),
		types.AttrAmount("to_stakers", split.ToStakers),
		types.AttrAmount("to_treasury", split.ToTreasury),
		types.AttrAmount("to_restaking", split.ToRestaking))
	if toStaking == 0 {
		return nil
	}
	if e.sink == nil {
		return ErrNoRewardSink
	}
	st.Balance -= toStaking
	if err := e.sink.FundRewards(call.As(ModuleAddress), toStaking); err != nil {
		return fmt.Errorf("distribute profit: %w", err)
	}
	return nil
}

// MarkProjectFailed closes an active project that missed its repayment
// deadline or has returned less than half its funding, and covers the
// shortfall from the insurance pool as far as the pool allows.
func (e *Engine) MarkProjectFailed(call types.Call, id uint64) (uint64, error) {
	if err := auth.Require(e.authz, auth.RoleTreasuryManager, call.Caller); err != nil {
		return 0, err
	}
	p, err := e.project(id)
	if err != nil {
		return 0, err
	}
	if err := requireStatus(p, StatusActive); err != nil {
		return 0, err
	}
	// 2*Returned >= Funded without overflow.
	if call.Now() <= p.RepaymentDeadline && p.Returned >= p.Funded-min(p.Funded, p.Returned) {
		return 0, ErrNotFailing
	}
	st := e.state
	shortfall := p.Funded - min(p.Funded, p.Returned)
	payout := min(shortfall, st.InsurancePool)
	st.InsurancePool -= payout
	st.Balance += payout
	st.Committed -= min(st.Committed, p.Funded-p.Disbursed)
	st.removeActive(id)
	p.InsurancePayout = payout
	p.Status = StatusFailed
	p.ClosedAt = call.Now()
	call.Emit("project_failed",
		projectAttr(id),
		types.AttrAmount("shortfall", shortfall),
		types.AttrAmount("insurance_payout", payout))
	return payout, nil
}

// SetFundingAllocation records the planned spend of a quarter.
func (e *Engine) SetFundingAllocation(call types.Call, a FundingAllocation) error {
	if err := auth.Require(e.authz, auth.RoleTreasuryManager, call.Caller); err != nil {
		return err
	}
	if a.Quarter < 1 || a.Quarter > 4 || a.Year == 0 {
		return fmt.Errorf("%w: %d Q%d", dao.ErrInvalidInput, a.Year, a.Quarter)
	}
	a.SetAt = call.Now()
	st := e.state
	if i, ok := st.findAllocation(a.Year, a.Quarter); ok {
		st.Allocations[i] = a
	} else {
		st.Allocations = append(st.Allocations, FundingAllocation{})
		copy(st.Allocations[i+1:], st.Allocations[i:])
		st.Allocations[i] = a
	}
	call.Emit("funding_allocation_set",
		types.AttrUint("year", uint64(a.Year)),
		types.AttrUint("quarter", uint64(a.Quarter)),
		types.AttrAmount("total", a.Total()))
	return nil
}

// FundingAllocation returns the plan for a quarter.
func (e *Engine) FundingAllocation(year uint32, quarter uint8) (FundingAllocation, bool) {
	i, ok := e.state.findAllocation(year, quarter)
	if !ok {
		return FundingAllocation{}, false
	}
	return e.state.Allocations[i], true
}

// TreasuryBalance is the treasury's spendable balance.
func (e *Engine) TreasuryBalance() uint64 { return e.state.Balance }

// InsurancePool is the insurance reserve.
func (e *Engine) InsurancePool() uint64 { return e.state.InsurancePool }

// ActiveProjectIDs lists active projects in ascending order.
func (e *Engine) ActiveProjectIDs() []uint64 { return append([]uint64(nil), e.state.Active...) }

// Project returns a copy of project id.
func (e *Engine) Project(id uint64) (Project, error) {
	p, err := e.project(id)
	if err != nil {
		return Project{}, err
	}
	c := *p
	c.Milestones = append([]Milestone(nil), p.Milestones...)
	return c, nil
}

// Summary is the queryable view of the treasury.
type Summary struct {
	Balance        uint64 `cramberry:"1"`
	Committed      uint64 `cramberry:"2"`
	Available      uint64 `cramberry:"3"`
	InsurancePool  uint64 `cramberry:"4"`
	ActiveProjects uint64 `cramberry:"5"`
	TotalProjects  uint64 `cramberry:"6"`
	TotalProfit    uint64 `cramberry:"7"`
}

// Summary returns the treasury totals.
func (e *Engine) Summary() Summary {
	st := e.state
	return Summary{
		Balance:        st.Balance,
		Committed:      st.Committed,
		Available:      e.Available(),
		InsurancePool:  st.InsurancePool,
		ActiveProjects: uint64(len(st.Active)),
		TotalProjects:  uint64(len(st.Projects)),
		TotalProfit:    st.TotalProfit,
	}
}
