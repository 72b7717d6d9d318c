package model

import "time"

// Progress is the single persisted record describing one identity's
// advancement through the three-step recovery workflow. Exactly one row
// exists per identity; it is created lazily on first authenticated access
// and never deleted by the workflow itself.
type Progress struct {
	IdentityID string `json:"identity_id"`

	// DestinationWallet is the user-supplied payout address. Free-form;
	// set at step 1 and mutable at steps 2 and 3.
	DestinationWallet string `json:"destination_wallet,omitempty"`

	// Per-step fees. Nil means not yet assigned; the first controller to
	// render the step assigns the step's default. Once assigned a fee is
	// immutable except through the operator surface.
	Step1Fee *int64 `json:"step1_fee,omitempty"`
	Step2Fee *int64 `json:"step2_fee,omitempty"`
	Step3Fee *int64 `json:"step3_fee,omitempty"`

	// Completion flags are monotonic: once true they are never observed
	// false again by any reader.
	Step1Completed bool `json:"step1_completed"`
	Step2Completed bool `json:"step2_completed"`
	Step3Completed bool `json:"step3_completed"`

	// RemitWallet and RemitNetwork tell the user where to send funds for
	// steps 2 and 3. System-owned; read-only from the workflow's side.
	RemitWallet  string `json:"remit_wallet,omitempty"`
	RemitNetwork string `json:"remit_network,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepCompleted reports whether the given step (1..3) is complete.
// Unknown step numbers are reported as incomplete.
func (p *Progress) StepCompleted(step int) bool {
	switch step {
	case 1:
		return p.Step1Completed
	case 2:
		return p.Step2Completed
	case 3:
		return p.Step3Completed
	}
	return false
}

// Fee returns the assigned fee for the given step, or nil if unset.
func (p *Progress) Fee(step int) *int64 {
	switch step {
	case 1:
		return p.Step1Fee
	case 2:
		return p.Step2Fee
	case 3:
		return p.Step3Fee
	}
	return nil
}

// FirstIncompleteStep returns the lowest step number whose completion flag
// is false, or 0 when all three steps are complete.
func (p *Progress) FirstIncompleteStep() int {
	for n := 1; n <= StepCount; n++ {
		if !p.StepCompleted(n) {
			return n
		}
	}
	return 0
}

// AllCompleted reports whether every step flag is true.
func (p *Progress) AllCompleted() bool {
	return p.FirstIncompleteStep() == 0
}

// Clone returns a deep copy of the record. Controllers hand snapshots to
// callers and must not share fee pointers with the cached record.
func (p *Progress) Clone() *Progress {
	c := *p
	c.Step1Fee = cloneFee(p.Step1Fee)
	c.Step2Fee = cloneFee(p.Step2Fee)
	c.Step3Fee = cloneFee(p.Step3Fee)
	return &c
}

func cloneFee(f *int64) *int64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// ProgressPatch is a partial update to a Progress record. Nil fields are
// left untouched. Completion flags can only be raised; a patch that tries
// to clear one fails validation.
type ProgressPatch struct {
	DestinationWallet *string `json:"destination_wallet,omitempty"`

	Step1Completed *bool `json:"step1_completed,omitempty"`
	Step2Completed *bool `json:"step2_completed,omitempty"`
	Step3Completed *bool `json:"step3_completed,omitempty"`

	// Operator-only fields. The step controllers never set these.
	Step1Fee     *int64  `json:"step1_fee,omitempty"`
	Step2Fee     *int64  `json:"step2_fee,omitempty"`
	Step3Fee     *int64  `json:"step3_fee,omitempty"`
	RemitWallet  *string `json:"remit_wallet,omitempty"`
	RemitNetwork *string `json:"remit_network,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p ProgressPatch) IsZero() bool {
	return p.DestinationWallet == nil &&
		p.Step1Completed == nil && p.Step2Completed == nil && p.Step3Completed == nil &&
		p.Step1Fee == nil && p.Step2Fee == nil && p.Step3Fee == nil &&
		p.RemitWallet == nil && p.RemitNetwork == nil
}

// Completed returns the patch's completion flag for the given step.
func (p ProgressPatch) Completed(step int) *bool {
	switch step {
	case 1:
		return p.Step1Completed
	case 2:
		return p.Step2Completed
	case 3:
		return p.Step3Completed
	}
	return nil
}
