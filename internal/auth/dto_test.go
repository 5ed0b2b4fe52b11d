package auth_test

import (
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/rbac-admin/internal/auth"
)

var _ = Describe("LoginDTO.Validate", func() {
	It("accepts a username and password", func() {
		Expect(auth.LoginDTO{Username: "alice", Password: "secret"}.Validate()).To(BeNil())
	})

	DescribeTable("rejects bad credentials",
		func(dto auth.LoginDTO) {
			appErr := dto.Validate()
			Expect(appErr).NotTo(BeNil())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		},
		Entry("missing username", auth.LoginDTO{Password: "secret"}),
		Entry("missing password", auth.LoginDTO{Username: "alice"}),
		Entry("username too long", auth.LoginDTO{Username: strings.Repeat("a", 51), Password: "secret"}),
		Entry("password beyond bcrypt input", auth.LoginDTO{Username: "alice", Password: strings.Repeat("p", 73)}),
	)
})
