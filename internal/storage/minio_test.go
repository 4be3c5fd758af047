package storage

import "testing"

func TestAttachmentObjectKey(t *testing.T) {
	cases := []struct {
		requestID string
		filename  string
		want      string
	}{
		{requestID: "req-1", filename: "photo.jpg", want: "req-1/photo.jpg"},
		{requestID: "req-1", filename: "../../etc/passwd", want: "req-1/passwd"},
		{requestID: "req-1", filename: `C:\Users\me\leak.png`, want: "req-1/leak.png"},
		{requestID: "req-1", filename: "", want: "req-1/attachment"},
	}
	for _, tc := range cases {
		if got := AttachmentObjectKey(tc.requestID, tc.filename); got != tc.want {
			t.Fatalf("AttachmentObjectKey(%q, %q) = %q, want %q", tc.requestID, tc.filename, got, tc.want)
		}
	}
}
