package room

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
)

// DefaultAlphabet is the numeric alphabet used for shareable room codes.
const DefaultAlphabet = "0123456789"

// CodeSource produces candidate room codes.
type CodeSource interface {
	Generate() (string, error)
}

// CodeGenerator draws fixed-length codes uniformly from Alphabet.
type CodeGenerator struct {
	Alphabet string
	Length   int
	Rand     io.Reader // crypto/rand when nil
}

// NewCodeGenerator returns a generator over alphabet, falling back to
// DefaultAlphabet and six characters.
func NewCodeGenerator(alphabet string, length int) *CodeGenerator {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if length <= 0 {
		length = 6
	}
	return &CodeGenerator{Alphabet: alphabet, Length: length}
}

// Generate returns one candidate code.
func (g *CodeGenerator) Generate() (string, error) {
	alphabet := []rune(g.Alphabet)
	if len(alphabet) == 0 || g.Length <= 0 {
		return "", errors.New("room: empty code alphabet")
	}
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}

	max := big.NewInt(int64(len(alphabet)))
	code := make([]rune, g.Length)
	for i := range code {
		n, err := rand.Int(src, max)
		if err != nil {
			return "", err
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}
