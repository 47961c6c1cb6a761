package vcs

import (
	"strings"
	"testing"
)

func TestComment_RoundTrip(t *testing.T) {
	c := ParseComment("")
	c.AddBuild(CommentBuild{TenantID: "t1", FunctionID: "f2", FunctionName: "resize", Status: "processing"})
	c.AddBuild(CommentBuild{TenantID: "t1", FunctionID: "f1", FunctionName: "thumbs", Status: "ready", LogsURL: "https://console/f1"})

	body := c.Render()
	if !strings.Contains(body, "| thumbs | `f1` | Ready | [View Logs](https://console/f1) |") {
		t.Errorf("missing ready row:\n%s", body)
	}
	if !strings.Contains(body, "| resize | `f2` | Building |") {
		t.Errorf("missing building row:\n%s", body)
	}

	parsed := ParseComment("Some text above\n\n" + body)
	builds := parsed.Builds()
	if len(builds) != 2 {
		t.Fatalf("builds = %d, want 2", len(builds))
	}
	if builds[0].FunctionID != "f1" || builds[1].FunctionID != "f2" {
		t.Errorf("unexpected order: %+v", builds)
	}
}

func TestComment_AddBuildReplacesRow(t *testing.T) {
	c := ParseComment("")
	c.AddBuild(CommentBuild{TenantID: "t1", FunctionID: "f1", Status: "processing"})
	c.AddBuild(CommentBuild{TenantID: "t1", FunctionID: "f1", Status: "failed"})
	c.AddBuild(CommentBuild{TenantID: "t2", FunctionID: "f1", Status: "ready"})

	builds := c.Builds()
	if len(builds) != 2 {
		t.Fatalf("builds = %d, want 2", len(builds))
	}
	if builds[0].Status != "failed" {
		t.Errorf("status = %s, want failed", builds[0].Status)
	}
}

func TestParseComment_Garbage(t *testing.T) {
	for _, body := range []string{
		"plain comment",
		commentStateMarker + "not base64 -->",
		commentStateMarker + "e30=",
	} {
		if got := len(ParseComment(body).Builds()); got != 0 {
			t.Errorf("ParseComment(%q) builds = %d, want 0", body, got)
		}
	}
}
