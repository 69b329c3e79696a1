package emr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrUnableToAuthenticateRequestingActor means the EMR userinfo endpoint
	// could not resolve the bearer credential to an actor.
	ErrUnableToAuthenticateRequestingActor = errors.New("unable to authenticate requesting actor")
	// ErrActorConsentRoleMissing means the resolved actor has no linked
	// practitioner role to search consents by.
	ErrActorConsentRoleMissing = errors.New("requesting actor has no practitioner role")
	// ErrNoConsentIssued means no active consent matches the full search
	// criteria.
	ErrNoConsentIssued = errors.New("no consent issued")
	// ErrConsentProvisionDenied means a consent exists but its provision type
	// is not "permit".
	ErrConsentProvisionDenied = errors.New("consent provision denied")
)

// Consent search constants fixed by the EMR consent model.
const (
	consentStatusActive  = "active"
	consentActionAccess  = "access"
	consentScopePrivacy  = "patient-privacy"
	consentCategoryINFAO = "INFAO"
	consentPurposeCare   = "CAREMGT"
	provisionPermit      = "permit"
)

// ConsentChecker evaluates whether the caller behind a bearer credential has
// an active permitting consent from a patient for this service's data.
type ConsentChecker struct {
	client *Client
	// subject is the data-endpoint identifier this service is registered
	// under in the EMR.
	subject string
	// identitySystem is the identifier system used to translate the EMR
	// patient back into the identity namespace used by the record store.
	identitySystem string
}

func NewConsentChecker(client *Client, subject, identitySystem string) *ConsentChecker {
	return &ConsentChecker{client: client, subject: subject, identitySystem: identitySystem}
}

// Check runs the consent chain for the given patient. Each step fails with a
// distinct error; on success it returns the patient's identity in the
// configured identifier namespace.
func (c *ConsentChecker) Check(ctx context.Context, patientID, authorization string) (string, error) {
	actor, err := c.client.UserInfo(ctx, authorization)
	if err != nil || actor == nil {
		return "", ErrUnableToAuthenticateRequestingActor
	}

	roleRefs := practitionerRefs(actor)
	if len(roleRefs) == 0 {
		return "", ErrActorConsentRoleMissing
	}

	patient, err := c.client.Patient(ctx, patientID, authorization)
	if err != nil {
		return "", fmt.Errorf("fetch patient: %w", err)
	}

	params := url.Values{}
	params.Set("actor", strings.Join(roleRefs, ","))
	params.Set("patient", patient.ID)
	params.Set("status", consentStatusActive)
	params.Set("action", consentActionAccess)
	params.Set("scope", consentScopePrivacy)
	params.Set("category", consentCategoryINFAO)
	params.Set("purpose", consentPurposeCare)
	params.Set("data:Endpoint.identifier", c.subject)

	consent, err := c.client.FirstConsent(ctx, params, authorization)
	if err != nil {
		return "", fmt.Errorf("search consents: %w", err)
	}
	if consent == nil {
		return "", ErrNoConsentIssued
	}
	if consent.Provision.Type != provisionPermit {
		return "", ErrConsentProvisionDenied
	}

	for _, identifier := range patient.Identifier {
		if identifier.System == c.identitySystem {
			return identifier.Value, nil
		}
	}
	return "", fmt.Errorf("patient %s has no identifier in system %s", patient.ID, c.identitySystem)
}

func practitionerRefs(actor *Actor) []string {
	var refs []string
	for _, role := range actor.Role {
		if role.Links.Practitioner != nil && role.Links.Practitioner.ID != "" {
			refs = append(refs, role.Links.Practitioner.ID)
		}
	}
	return refs
}
