package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// AuthorityIndex is the position of an authority in the committee.
type AuthorityIndex uint32

func (idx AuthorityIndex) Bytes() []byte {
	bz := make([]byte, 4)
	binary.BigEndian.PutUint32(bz, uint32(idx))
	return bz
}

type Address crypto.Address

func (addr Address) Equal(other Address) bool {
	if addr == nil || other == nil {
		return false
	}
	return bytes.Equal(addr, other)
}

func (addr Address) String() string {
	return crypto.Address(addr).String()
}

// Authority is a committee member allowed to propose blocks.
type Authority struct {
	Name    string        `json:"name"`
	Address Address       `json:"address"`
	PubKey  crypto.PubKey `json:"pub_key"`
}

func NewAuthority(name string, pubKey crypto.PubKey) *Authority {
	return &Authority{
		Name:    name,
		Address: Address(pubKey.Address()),
		PubKey:  pubKey,
	}
}

// ValidateBasic performs basic validation.
func (a *Authority) ValidateBasic() error {
	if a == nil {
		return errors.New("nil authority")
	}
	if a.PubKey == nil {
		return errors.New("authority does not have a public key")
	}
	if len(a.Address) != crypto.AddressSize {
		return fmt.Errorf("authority address is the wrong size: %v", a.Address)
	}
	if !bytes.Equal(a.Address, a.PubKey.Address()) {
		return fmt.Errorf("authority address %v does not match its public key", a.Address)
	}
	return nil
}

// Copy panics if the authority is nil.
func (a *Authority) Copy() *Authority {
	aCopy := *a
	return &aCopy
}

func (a *Authority) String() string {
	if a == nil {
		return "nil-Authority"
	}
	return fmt.Sprintf("Authority{%s %v %v}", a.Name, a.Address, a.PubKey)
}

// Bytes is the encoding hashed into the committee hash. The address is left
// out as it is derived from the public key.
func (a *Authority) Bytes() []byte {
	pk, err := tmjson.Marshal(a.PubKey)
	if err != nil {
		panic(err)
	}
	return append([]byte(a.Name), pk...)
}
