package boxing

import (
	"sync"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	"github.com/coral-mesh/paramcapture/internal/capture/signature"
)

// Instruction is the boxing instruction of one parameter.
type Instruction struct {
	Token uint32

	// SignatureOffset and SignatureLength locate the parameter's encoding in
	// the method signature blob when the token came from decoding it. Both
	// are zero otherwise.
	SignatureOffset int
	SignatureLength int
}

// Supported reports whether the parameter will be captured.
func (i Instruction) Supported() bool {
	return i.Token != UnsupportedToken
}

// Assemble produces the boxing instructions of method: the receiver first,
// if there is one, then the formal parameters in declaration order.
//
// The signature blob is decoded at most once, and only when a formal
// parameter is a value type from another module. If decoding fails those
// parameters become unsupported; the rest of the method is unaffected.
func Assemble(method *metadata.Method) []Instruction {
	instructions := make([]Instruction, 0, method.ParameterCount())

	if method.HasImplicitThis() {
		instructions = append(instructions, fromDecision(ClassifyReceiver(method)))
	}

	decode := sync.OnceValues(func() (*signature.MethodSignature[uint32], error) {
		return DecodeReferenceTokens(method.Signature)
	})

	for index, param := range method.Parameters {
		decision := Classify(method, param.Type, false)
		if decision.Kind != NeedsSignatureDecode {
			instructions = append(instructions, fromDecision(decision))
			continue
		}

		sig, err := decode()
		if err != nil || index >= len(sig.ParameterTypes) {
			instructions = append(instructions, Instruction{Token: UnsupportedToken})
			continue
		}
		decoded := sig.ParameterTypes[index]
		instructions = append(instructions, Instruction{
			Token:           decoded.Type,
			SignatureOffset: decoded.Offset,
			SignatureLength: decoded.Length,
		})
	}

	return instructions
}

func fromDecision(d Decision) Instruction {
	token, ok := d.Token()
	if !ok {
		token = UnsupportedToken
	}
	return Instruction{Token: token}
}

// Tokens extracts the wire tokens of instructions.
func Tokens(instructions []Instruction) []uint32 {
	tokens := make([]uint32, len(instructions))
	for i, instr := range instructions {
		tokens[i] = instr.Token
	}
	return tokens
}

// SupportedParameters returns, in parameter order, whether each parameter
// will be captured.
func SupportedParameters(instructions []Instruction) []bool {
	supported := make([]bool, len(instructions))
	for i, instr := range instructions {
		supported[i] = instr.Supported()
	}
	return supported
}
