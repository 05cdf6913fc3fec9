package utils

import "testing"

func TestComposeChangedDetectsVerbs(t *testing.T) {
	out := ` Network nginx_default  Creating
 Network nginx_default  Created
 Container nginx-web-1  Starting
 Container nginx-web-1  Started
`
	if !composeChanged(out) {
		t.Fatalf("created/started output should count as changed")
	}
}

func TestComposeChangedIgnoresSteadyState(t *testing.T) {
	out := ` Container nginx-web-1  Running
`
	if composeChanged(out) {
		t.Fatalf("running-only output is not a change")
	}
}

func TestComposeChangedDownVerbs(t *testing.T) {
	out := ` Container nginx-web-1  Stopping
 Container nginx-web-1  Stopped
 Container nginx-web-1  Removing
 Container nginx-web-1  Removed
 Network nginx_default  Removing
 Network nginx_default  Removed
`
	if !composeChanged(out) {
		t.Fatalf("down output should count as changed")
	}
}

func TestComposeChangedEmpty(t *testing.T) {
	if composeChanged("") {
		t.Fatalf("empty output is not a change")
	}
}
