package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

const (
	cacheNamespaceSpeculative = "spec"
	cacheNamespaceFinal       = "final"
)

// responseCacheKey builds a collision-resistant cache key. The namespace
// and mode are kept outside the hash so two cache domains sharing the same
// content hash can never resolve to the same stored entry, and the query
// material is hashed rather than concatenated so filter contents cannot
// forge a foreign key.
func responseCacheKey(namespace string, mode domain.Mode, queryText string, filter domain.SearchFilter) string {
	h := sha256.New()
	h.Write([]byte(normalizeQueryText(queryText)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(filter.Category))))
	return fmt.Sprintf("%s:%s:%s", namespace, mode, hex.EncodeToString(h.Sum(nil)))
}

func normalizeQueryText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
