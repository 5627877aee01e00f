package types

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/tempfile"
)

// Committee is the fixed set of authorities of an epoch. Every authority has
// the same stake, so thresholds are counted in authorities.
//
// The index of an authority is its position in Authorities and never changes
// for the lifetime of the committee.
//
// NOTE: Not goroutine-safe for writes; committees are built once and shared
// read-only afterwards.
type Committee struct {
	Authorities []*Authority `json:"authorities"`
}

// NewCommittee copies auths into a new committee. Addresses must be unique
// otherwise the function panics.
func NewCommittee(auths []*Authority) *Committee {
	c := &Committee{Authorities: make([]*Authority, 0, len(auths))}
	for _, a := range auths {
		if c.HasAddress(a.Address) {
			panic(fmt.Sprintf("duplicate authority address %v", a.Address))
		}
		c.Authorities = append(c.Authorities, a.Copy())
	}
	return c
}

func (c *Committee) ValidateBasic() error {
	if c.IsNilOrEmpty() {
		return errors.New("committee is nil or empty")
	}
	for idx, a := range c.Authorities {
		if err := a.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid authority #%d: %w", idx, err)
		}
	}
	return nil
}

// IsNilOrEmpty returns true if committee is nil or empty.
func (c *Committee) IsNilOrEmpty() bool {
	return c == nil || len(c.Authorities) == 0
}

// Size returns the number of authorities.
func (c *Committee) Size() int {
	return len(c.Authorities)
}

// QuorumThreshold is the number of authorities needed for a quorum, 2n/3+1.
// It equals 2f+1 when the committee has 3f+1 members.
func (c *Committee) QuorumThreshold() int {
	return 2*c.Size()/3 + 1
}

// ValidityThreshold is the number of authorities that guarantees at least one
// honest member, (n+2)/3. It equals f+1 when the committee has 3f+1 members.
func (c *Committee) ValidityThreshold() int {
	return (c.Size() + 2) / 3
}

// Leader returns the round-robin leader of round.
func (c *Committee) Leader(round Round) AuthorityIndex {
	if c.IsNilOrEmpty() {
		panic("leader of an empty committee")
	}
	return AuthorityIndex(uint64(round) % uint64(c.Size()))
}

func (c *Committee) HasAuthority(idx AuthorityIndex) bool {
	return int(idx) < len(c.Authorities)
}

// HasAddress returns true if address given is in the committee.
func (c *Committee) HasAddress(address []byte) bool {
	for _, a := range c.Authorities {
		if bytes.Equal(a.Address, address) {
			return true
		}
	}
	return false
}

// GetByAddress returns the index of the authority with address and a copy of
// it. Otherwise -1 and nil are returned.
func (c *Committee) GetByAddress(address []byte) (index int32, auth *Authority) {
	for idx, a := range c.Authorities {
		if bytes.Equal(a.Address, address) {
			return int32(idx), a.Copy()
		}
	}
	return -1, nil
}

// GetByIndex returns a copy of the authority, or nil when idx is out of range.
func (c *Committee) GetByIndex(idx AuthorityIndex) *Authority {
	if !c.HasAuthority(idx) {
		return nil
	}
	return c.Authorities[idx].Copy()
}

// Hash returns the Merkle root hash built using authorities (as leaves).
func (c *Committee) Hash() []byte {
	bzs := make([][]byte, len(c.Authorities))
	for i, a := range c.Authorities {
		bzs[i] = a.Bytes()
	}
	return merkle.HashFromByteSlices(bzs)
}

// Iterate will run the given function over the committee.
func (c *Committee) Iterate(fn func(index AuthorityIndex, auth *Authority) bool) {
	for i, a := range c.Authorities {
		if fn(AuthorityIndex(i), a.Copy()) {
			break
		}
	}
}

func (c *Committee) String() string {
	return c.StringIndented("")
}

func (c *Committee) StringIndented(indent string) string {
	if c == nil {
		return "nil-Committee"
	}
	var authStrings []string
	c.Iterate(func(_ AuthorityIndex, a *Authority) bool {
		authStrings = append(authStrings, a.String())
		return false
	})
	return fmt.Sprintf(`Committee{
%s  Authorities:
%s    %v
%s}`,
		indent,
		indent, strings.Join(authStrings, "\n"+indent+"    "),
		indent)
}

//----------------------------------------
// committee file

// SaveAs writes the committee as indented JSON to file.
func (c *Committee) SaveAs(file string) error {
	bz, err := tmjson.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(file, bz, 0644)
}

// LoadCommitteeFile reads and validates a committee written by SaveAs.
func LoadCommitteeFile(file string) (*Committee, error) {
	bz, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("couldn't read committee file: %w", err)
	}
	c := &Committee{}
	if err := tmjson.Unmarshal(bz, c); err != nil {
		return nil, fmt.Errorf("error reading committee from %v: %w", file, err)
	}
	if err := c.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid committee in %v: %w", file, err)
	}
	return c, nil
}

//----------------------------------------

// RandCommittee returns a committee of size n together with the signers of
// its authorities, in committee order.
//
// EXPOSED FOR TESTING.
func RandCommittee(n int) (*Committee, []BlockSigner) {
	var (
		auths   = make([]*Authority, n)
		signers = make([]BlockSigner, n)
	)
	for i := 0; i < n; i++ {
		pv := NewMockPV()
		pub, err := pv.GetPubKey()
		if err != nil {
			panic(err)
		}
		auths[i] = NewAuthority(fmt.Sprintf("authority-%d", i), pub)
		signers[i] = pv
	}
	return NewCommittee(auths), signers
}
