package memorystore

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("splitCompositeKey", func() {
	It("recovers the session ID and key from a well-formed composite key", func() {
		sessionID, key, ok := splitCompositeKey("mesh:alpha:profile_embedding")
		Expect(ok).To(BeTrue())
		Expect(sessionID).To(Equal("alpha"))
		Expect(key).To(Equal("profile_embedding"))
	})

	It("keeps extra colons in the key half, not the session ID", func() {
		_, key, ok := splitCompositeKey("mesh:alpha:notes:2026-08-01")
		Expect(ok).To(BeTrue())
		Expect(key).To(Equal("notes:2026-08-01"))
	})

	It("rejects a string missing the mesh: prefix", func() {
		_, _, ok := splitCompositeKey("alpha:profile")
		Expect(ok).To(BeFalse())
	})

	It("rejects a string with no session/key separator", func() {
		_, _, ok := splitCompositeKey("mesh:alpha")
		Expect(ok).To(BeFalse())
	})

	It("round-trips with KeyFormatter.Format", func() {
		composite := KeyFormatter{}.Format("alpha", "profile_embedding")
		sessionID, key, ok := splitCompositeKey(composite)
		Expect(ok).To(BeTrue())
		Expect(sessionID).To(Equal("alpha"))
		Expect(key).To(Equal("profile_embedding"))
	})
})
