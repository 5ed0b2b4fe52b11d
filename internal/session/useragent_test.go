package session_test

import (
	"strings"

	"github.com/frahmantamala/rbac-admin/internal/session"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseUserAgent", func() {
	DescribeTable("detects browser and operating system",
		func(ua, browser, os string) {
			b, o := session.ParseUserAgent(ua)
			Expect(b).To(Equal(browser))
			Expect(o).To(Equal(os))
		},
		Entry("edge on windows",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.61",
			"Edge 120.0.2210.61", "Windows"),
		Entry("chrome on macOS",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Chrome 119.0.0.0", "macOS"),
		Entry("firefox on linux",
			"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			"Firefox 121.0", "Linux"),
		Entry("safari on iPhone",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			"Safari 17.1", "iOS"),
		Entry("chrome on android",
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.43 Mobile Safari/537.36",
			"Chrome 120.0.6099.43", "Android"),
		Entry("unknown client", "curl/8.4.0", "", ""),
		Entry("empty header", "", "", ""),
	)

	It("caps an oversized version so the browser fits its column", func() {
		b, _ := session.ParseUserAgent("Chrome/" + strings.Repeat("1", 100))
		Expect(b).To(Equal("Chrome " + strings.Repeat("1", 32)))
		Expect(len(b)).To(BeNumerically("<=", 64))
	})
})
