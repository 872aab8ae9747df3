package sourceurl

import "testing"

func TestResolveAliasSSH(t *testing.T) {
	remotes := map[string]string{"onion": "ssh://git@example.com:22"}
	rr, err := Resolve(remotes, "bcoin", "onion:bcoin/bcoin#semver:~1.1.7", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if rr.GitURL != "ssh://git@example.com:22/bcoin/bcoin.git" {
		t.Errorf("GitURL = %q", rr.GitURL)
	}
	if rr.VersionRange != "~1.1.7" || rr.Branch != "" {
		t.Errorf("VersionRange=%q Branch=%q", rr.VersionRange, rr.Branch)
	}
}

func TestResolveAliasFileDefaultRepo(t *testing.T) {
	remotes := map[string]string{"local": "git+file:///data"}
	rr, err := Resolve(remotes, "repo", "local:#semver:~1.1.7", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if rr.GitURL != "file:///data/repo/.git" {
		t.Errorf("GitURL = %q", rr.GitURL)
	}
}

func TestResolveDirectHTTPSBranch(t *testing.T) {
	rr, err := Resolve(nil, "bcfg", "git+https://host/org/bcfg.git#v2.0.0", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if rr.GitURL != "https://host/org/bcfg.git" {
		t.Errorf("GitURL = %q", rr.GitURL)
	}
	if rr.Branch != "v2.0.0" || rr.VersionRange != "" {
		t.Errorf("Branch=%q VersionRange=%q", rr.Branch, rr.VersionRange)
	}
}

func TestResolveUnknownRemote(t *testing.T) {
	_, err := Resolve(map[string]string{}, "foo", "missing:foo#semver:^1.0.0", "", false)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestResolveBareVersion(t *testing.T) {
	rr, err := Resolve(nil, "foo", "^1.0.0", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if !rr.IsBareVersion() {
		t.Error("expected bare version source with no git_url")
	}
	if rr.VersionRange != "^1.0.0" {
		t.Errorf("VersionRange = %q", rr.VersionRange)
	}
}

func TestResolveRelativeFileNoBase(t *testing.T) {
	remotes := map[string]string{"local": "git+file://relative/path"}
	_, err := Resolve(remotes, "repo", "local:#semver:~1.0.0", "", false)
	if err == nil {
		t.Fatal("expected UnknownBaseError")
	}
}

func TestLooksLikeCommitSHA(t *testing.T) {
	if !LooksLikeCommitSHA("0123456789abcdef0123456789abcdef01234567") {
		t.Error("expected 40-hex string to look like a commit sha")
	}
	if LooksLikeCommitSHA("main") {
		t.Error("did not expect branch name to look like a commit sha")
	}
}
