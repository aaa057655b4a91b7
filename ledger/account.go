package ledger

// LamportsPerSOL is the number of lamports in one SOL
const LamportsPerSOL uint64 = 1_000_000_000

// Account is one ledger record
type Account struct {
	Lamports   uint64
	Owner      Address
	Executable bool
	RentEpoch  uint64
	Data       []byte
}

// Clone returns a deep copy of the account
func (a Account) Clone() Account {
	if a.Data != nil {
		data := make([]byte, len(a.Data))
		copy(data, a.Data)
		a.Data = data
	}
	return a
}

// LamportsToSOL converts lamports to SOL for display
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(LamportsPerSOL)
}
