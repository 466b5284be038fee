package interfaces

//go:generate mockgen -package=mock -source=keybuilder.go -destination=mock/keybuilder.go

// KeyBuilder canonizes logical resource identities into storage-safe keys
type KeyBuilder interface {
	// Build returns the storage key for a namespace and a logical key
	Build(namespace, key string) (string, error)
	// BuildFromParams hashes structured parameters into a deterministic logical key
	BuildFromParams(params interface{}) (string, error)
}
