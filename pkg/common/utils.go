package common

import (
	"math/rand"
	"time"
)

const trxCharacters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateTrxNo returns a random 7 character reference code.
func GenerateTrxNo() string {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	result := make([]byte, 7)
	for i := range result {
		result[i] = trxCharacters[r.Intn(len(trxCharacters))]
	}
	return string(result)
}
