package enums

import "testing"

func TestParseRole(t *testing.T) {
	cases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "user", want: RoleUser},
		{in: " Seller ", want: RoleSeller},
		{in: "ADMIN", want: RoleAdmin},
		{in: "guest", want: RoleGuest},
		{in: "pharmacist", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseRole(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestRoleSelfAssignable(t *testing.T) {
	if !RoleUser.SelfAssignable() || !RoleSeller.SelfAssignable() {
		t.Fatal("user and seller must be self assignable")
	}
	if RoleAdmin.SelfAssignable() || RoleGuest.SelfAssignable() {
		t.Fatal("admin and guest must not be self assignable")
	}
}

func TestParseCurrencyIgnoresCase(t *testing.T) {
	got, err := ParseCurrency("USD")
	if err != nil || got != CurrencyUSD {
		t.Fatalf("expected usd, got %q %v", got, err)
	}
	if _, err := ParseCurrency("btc"); err == nil {
		t.Fatal("expected btc to be rejected")
	}
}

func TestPaymentEnums(t *testing.T) {
	if !PaymentStatusPaid.IsValid() || PaymentStatus("settled").IsValid() {
		t.Fatal("unexpected payment status validity")
	}
	if _, err := ParsePaymentMethod("card"); err != nil {
		t.Fatalf("card should parse: %v", err)
	}
	if _, err := ParsePaymentMethod("cash"); err == nil {
		t.Fatal("cash should not parse")
	}
	if _, err := ParseInvoiceStatus("paid"); err != nil {
		t.Fatalf("paid invoice status should parse: %v", err)
	}
}
