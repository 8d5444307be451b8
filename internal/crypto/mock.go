package crypto

import (
	"context"
	"fmt"
	"strings"
)

const mockPrefix = "mock:"

// MockEncryptor implements Encryptor for dev mode. Values are only tagged, not sealed.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	return mockPrefix + plaintext, nil
}

// Decrypt rejects values that were not produced by Encrypt.
func (m *MockEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	plaintext, ok := strings.CutPrefix(ciphertext, mockPrefix)
	if !ok {
		return "", fmt.Errorf("value was not sealed by the mock encryptor")
	}
	return plaintext, nil
}
