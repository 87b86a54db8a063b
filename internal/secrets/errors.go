package secrets

import "errors"

var (
	// ErrVaultDisabled is returned when a reference is found but Vault is not configured.
	ErrVaultDisabled = errors.New("vault is disabled")

	// ErrInvalidReference means a reference does not have the form vault:<mount>/<path>#<field>.
	ErrInvalidReference = errors.New("invalid secret reference")

	// ErrSecretNotFound means the KV path does not exist or was deleted.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrFieldNotFound means the secret exists but lacks the field or it is not a string.
	ErrFieldNotFound = errors.New("secret field not found")
)
