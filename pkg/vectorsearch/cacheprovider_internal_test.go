package vectorsearch

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// This file exercises parseFTSearchValues directly against a hand-built
// FT.SEARCH reply shape, since miniredis (used by cacheprovider_test.go)
// doesn't implement the RediSearch module and so never drives the native
// KNN path.
var _ = Describe("parseFTSearchValues", func() {
	ftReply := func(docs ...[2]string) []interface{} {
		reply := []interface{}{int64(len(docs))}
		for i, doc := range docs {
			reply = append(reply, "meshvec:mesh:q:doc"+string(rune('1'+i)))
			reply = append(reply, []interface{}{"value", doc[0], "score", doc[1]})
		}
		return reply
	}

	It("keeps only hits whose 1-distance score clears threshold", func() {
		reply := ftReply(
			[2]string{"near", "0.02"}, // similarity 0.98
			[2]string{"far", "0.9"},   // similarity 0.10
		)
		out := parseFTSearchValues(reply, 0.5)
		Expect(out).To(Equal([]string{"near"}))
	})

	It("excludes a hit with no parseable score rather than letting it through", func() {
		reply := []interface{}{int64(1), "meshvec:mesh:q:doc1", []interface{}{"value", "near"}}
		out := parseFTSearchValues(reply, 0.5)
		Expect(out).To(BeEmpty())
	})

	It("caps results at MaxResults", func() {
		docs := make([][2]string, 0, MaxResults+3)
		for i := 0; i < MaxResults+3; i++ {
			docs = append(docs, [2]string{"v", "0.0"})
		}
		out := parseFTSearchValues(ftReply(docs...), 0.1)
		Expect(out).To(HaveLen(MaxResults))
	})
})
