package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/oemhub/identity-broker/internal/directory"
)

var _ = ginkgo.Describe("SessionStore", func() {
	var store *SessionStore

	ginkgo.BeforeEach(func() {
		store = NewSessionStore()
	})

	session := func(remoteID string) Session {
		return Session{
			User:           directory.UserRecord{LocalID: "l-" + remoteID, RemoteID: remoteID},
			DelegatedToken: "token-" + remoteID,
			CreatedAt:      time.Now(),
		}
	}

	ginkgo.Describe("Put and Get", func() {
		ginkgo.It("should return the stored session", func() {
			// Given
			store.Put("id-1", session("r-1"))

			// When
			got, ok := store.Get("id-1")

			// Then
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(got.DelegatedToken).To(gomega.Equal("token-r-1"))
		})

		ginkgo.It("should report a miss for an unknown id", func() {
			// When
			_, ok := store.Get("missing")

			// Then
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("Remove", func() {
		ginkgo.It("should report whether anything was removed", func() {
			// Given
			store.Put("id-1", session("r-1"))

			// When & Then
			gomega.Expect(store.Remove("id-1")).To(gomega.BeTrue())
			gomega.Expect(store.Remove("id-1")).To(gomega.BeFalse())
			gomega.Expect(store.Len()).To(gomega.Equal(0))
		})
	})

	ginkgo.Describe("RemoveByRemoteID", func() {
		ginkgo.It("should remove only sessions for the given remote identity", func() {
			// Given
			store.Put("id-1", session("r-1"))
			store.Put("id-2", session("r-1"))
			store.Put("id-3", session("r-2"))

			// When
			removed := store.RemoveByRemoteID("r-1")

			// Then
			gomega.Expect(removed).To(gomega.Equal(2))
			gomega.Expect(store.Len()).To(gomega.Equal(1))
			_, ok := store.Get("id-3")
			gomega.Expect(ok).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("concurrent access", func() {
		ginkgo.It("should keep an exact count under concurrent puts and removes", func() {
			// Given
			const n = 200
			var wg sync.WaitGroup

			// When
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id := fmt.Sprintf("id-%d", i)
					store.Put(id, session(fmt.Sprintf("r-%d", i%10)))
					if i%2 == 0 {
						store.Remove(id)
					}
				}(i)
			}
			wg.Wait()

			// Then
			gomega.Expect(store.Len()).To(gomega.Equal(n / 2))
		})
	})
})

var _ = ginkgo.Describe("HandleCodec", func() {
	var codec *HandleCodec

	ginkgo.BeforeEach(func() {
		codec = NewHandleCodec("test-session-secret-test-session-secret", time.Hour)
	})

	ginkgo.It("should round-trip a store key", func() {
		// When
		handle, err := codec.Encode("session-key-1")

		// Then
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		id, err := codec.Decode(handle)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(id).To(gomega.Equal("session-key-1"))
	})

	ginkgo.It("should reject a tampered handle", func() {
		// Given
		handle, err := codec.Encode("session-key-1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		// When
		_, err = codec.Decode(handle + "tamper")

		// Then
		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	ginkgo.It("should reject a handle signed with a different secret", func() {
		// Given
		other := NewHandleCodec("another-secret-value-another-secret-value", time.Hour)
		handle, err := other.Encode("session-key-1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		// When
		_, err = codec.Decode(handle)

		// Then
		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	ginkgo.It("should reject an expired handle", func() {
		// Given
		expired := NewHandleCodec("test-session-secret-test-session-secret", -time.Hour)
		handle, err := expired.Encode("session-key-1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		// When
		_, err = codec.Decode(handle)

		// Then
		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	ginkgo.It("should reject garbage input", func() {
		// When
		_, err := codec.Decode("not.a.jwt")

		// Then
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})
