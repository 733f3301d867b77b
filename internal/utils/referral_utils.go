package utils

import (
	"fmt"
	"log"
	"net/url"

	"github.com/skip2/go-qrcode"
)

// GenerateReferralLink builds the registration link embedding a referral
// code, e.g. https://app.example.com/register?ref=JEAN7K2M.
func GenerateReferralLink(baseURL, referralCode string) (string, error) {
	if baseURL == "" {
		return "", fmt.Errorf("application base URL not configured")
	}
	if referralCode == "" {
		return "", fmt.Errorf("empty referral code")
	}
	return fmt.Sprintf("%s/register?ref=%s", baseURL, url.QueryEscape(referralCode)), nil
}

// GenerateReferralQRCode renders the referral link as a PNG QR code.
func GenerateReferralQRCode(baseURL, referralCode string) ([]byte, error) {
	link, err := GenerateReferralLink(baseURL, referralCode)
	if err != nil {
		return nil, err
	}
	qrBytes, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		log.Printf("GenerateReferralQRCode: encoding %q: %v", link, err)
		return nil, err
	}
	return qrBytes, nil
}
