package migrate

import (
	"testing"
)

func TestRewriteImages(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "width and alt",
			in: "This is on my local instance, and here is where the folder lives:\n" +
				`<img width="836" alt="screen shot 2018-04-25 at 5 11 43 pm" src="https://user-images.githubusercontent.com/22987725/39273087-d1e6cc2e-48ab-11e8-83cf-c4a26f37488a.png">` +
				"\nThanks!",
			want: "This is on my local instance, and here is where the folder lives:\n" +
				"![screen shot 2018-04-25 at 5 11 43 pm](https://user-images.githubusercontent.com/22987725/39273087-d1e6cc2e-48ab-11e8-83cf-c4a26f37488a.png)" +
				"\nThanks!",
		},
		{
			name: "missing alt uses last path segment",
			in:   `<img src="https://example.com/a/b/diagram.png">`,
			want: "![diagram.png](https://example.com/a/b/diagram.png)",
		},
		{
			name: "width only",
			in:   `<img width="10" src="https://example.com/x.gif">`,
			want: "![x.gif](https://example.com/x.gif)",
		},
		{
			name: "empty alt is kept",
			in:   `<img alt="" src="https://example.com/x.gif">`,
			want: "![](https://example.com/x.gif)",
		},
		{
			name: "trailing slash falls back to default name",
			in:   `<img src="https://example.com/dir/">`,
			want: "![image.png](https://example.com/dir/)",
		},
		{
			name: "several images",
			in:   `<img src="a/1.png"> and <img alt="two" src="b/2.png">`,
			want: "![1.png](a/1.png) and ![two](b/2.png)",
		},
		{
			name: "no images",
			in:   "plain **markdown**",
			want: "plain **markdown**",
		},
		{
			name: "other attributes are not rewritten",
			in:   `<img src="x.png" height="3">`,
			want: `<img src="x.png" height="3">`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RewriteImages(tt.in); got != tt.want {
				t.Errorf("RewriteImages() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFooter(t *testing.T) {
	got := Footer([]string{"* first", "* second"})
	want := "\n\n---\n\n#### Migration notes\n\n* first\n\n* second\n\n---\n\n"
	if got != want {
		t.Errorf("Footer() = %q, want %q", got, want)
	}
}
