// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"html/template"
	"io"

	"github.com/opentrusty/opentrusty/internal/oauth2"
)

const consentHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Authorize {{.ClientName}}</title></head>
<body>
  <h1>{{.ClientName}} is requesting access</h1>
  <p>This application would like to:</p>
  <ul>
  {{range .ScopeDescriptions}}<li>{{.}}</li>
  {{end}}
  </ul>
  <form method="post" action="/api/oauth/consent">
    <input type="hidden" name="client_id" value="{{.ClientID}}">
    <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
    <input type="hidden" name="response_type" value="{{.ResponseType}}">
    <input type="hidden" name="scope" value="{{.Scope}}">
    <input type="hidden" name="state" value="{{.State}}">
    <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
    <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
    <button type="submit" name="decision" value="approve">Allow</button>
    <button type="submit" name="decision" value="deny">Deny</button>
  </form>
</body>
</html>
`

// consentData is the template context for the rendered consent page.
type consentData struct {
	ClientName           string
	ClientID             string
	RedirectURI          string
	ResponseType         string
	Scope                string
	State                string
	CodeChallenge        string
	CodeChallengeMethod  string
	ScopeDescriptions    []string
}

// consentTemplate wraps the parsed html/template for the consent page.
// html/template, not text/template, so client-supplied fields (client_name,
// redirect_uri) are contextually escaped before being written into the page.
type consentTemplate struct {
	tmpl *template.Template
}

func newConsentTemplate() *consentTemplate {
	return &consentTemplate{tmpl: template.Must(template.New("consent").Parse(consentHTML))}
}

// Render writes the consent page for the given client and in-flight
// authorize request.
func (c *consentTemplate) Render(w io.Writer, client *oauth2.Client, req *oauth2.AuthorizeRequest) error {
	data := consentData{
		ClientName:          client.ClientName,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		ResponseType:        req.ResponseType,
		Scope:                req.Scope,
		State:                req.State,
		CodeChallenge:        req.CodeChallenge,
		CodeChallengeMethod:  req.CodeChallengeMethod,
		ScopeDescriptions:    oauth2.ScopeDescriptions(req.Scope),
	}
	return c.tmpl.Execute(w, data)
}
