package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// New creates middleware that maps each API key to the partition of the
// knowledge base that the key can read and write.
func New(apiKeyToPartition map[string]string, next http.Handler) *Auth {
	return &Auth{
		Next:              next,
		APIKeyToPartition: apiKeyToPartition,
	}
}

type Auth struct {
	Next              http.Handler
	APIKeyToPartition map[string]string
}

// LoadFromFile reads a map of API key to partition. Files with a .yaml or
// .yml extension are read as YAML, anything else as JSON.
func LoadFromFile(name string) (apiKeyToPartition map[string]string, err error) {
	f, err := os.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m := make(map[string]string)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(f).Decode(&m)
	default:
		err = json.NewDecoder(f).Decode(&m)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode %q: %w", name, err)
	}
	for key, partition := range m {
		if partition == "" {
			return nil, fmt.Errorf("auth: API key %q has no partition", key)
		}
	}
	return m, nil
}

type partitionContextKey int

const partitionKey partitionContextKey = 0

func GetPartition(r *http.Request) (partition string, ok bool) {
	partition, ok = r.Context().Value(partitionKey).(string)
	return
}

func (a *Auth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partition, ok := a.APIKeyToPartition[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	r = r.WithContext(context.WithValue(r.Context(), partitionKey, partition))
	a.Next.ServeHTTP(w, r)
}
