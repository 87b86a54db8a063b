// Package secrets resolves "vault:<mount>/<path>#<field>" references found in
// configuration against a HashiCorp Vault KV v2 engine.
package secrets
