package boxing

import (
	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	"github.com/coral-mesh/paramcapture/internal/capture/signature"
)

// refTokenProvider yields the TypeRef token of foreign types and
// UnsupportedToken for every other shape. Those shapes were either settled
// by Classify already or cannot be captured.
type refTokenProvider struct{}

var _ signature.TypeProvider[uint32] = refTokenProvider{}

func (refTokenProvider) TypeReference(token metadata.Token, _ signature.RawTypeKind) uint32 {
	return uint32(token)
}

func (refTokenProvider) Primitive(signature.ElementType) uint32 { return UnsupportedToken }

func (refTokenProvider) TypeDefinition(metadata.Token, signature.RawTypeKind) uint32 {
	return UnsupportedToken
}

func (refTokenProvider) TypeSpecification(metadata.Token, signature.RawTypeKind) uint32 {
	return UnsupportedToken
}

func (refTokenProvider) SZArray(uint32) uint32 { return UnsupportedToken }

func (refTokenProvider) Array(uint32, signature.ArrayShape) uint32 { return UnsupportedToken }

func (refTokenProvider) ByReference(uint32) uint32 { return UnsupportedToken }

func (refTokenProvider) Pointer(uint32) uint32 { return UnsupportedToken }

func (refTokenProvider) Pinned(uint32) uint32 { return UnsupportedToken }

func (refTokenProvider) GenericInstantiation(uint32, []uint32) uint32 { return UnsupportedToken }

func (refTokenProvider) GenericTypeParameter(int) uint32 { return UnsupportedToken }

func (refTokenProvider) GenericMethodParameter(int) uint32 { return UnsupportedToken }

func (refTokenProvider) FunctionPointer(*signature.MethodSignature[uint32]) uint32 {
	return UnsupportedToken
}

func (refTokenProvider) Modified(uint32, uint32, bool) uint32 { return UnsupportedToken }

var refTokenDecoder = signature.NewDecoder[uint32](refTokenProvider{})

// DecodeReferenceTokens decodes a method signature into one token per formal
// parameter: the TypeRef token for types referenced from another module and
// UnsupportedToken for everything else.
func DecodeReferenceTokens(blob []byte) (*signature.MethodSignature[uint32], error) {
	return refTokenDecoder.DecodeMethodSignature(blob)
}
