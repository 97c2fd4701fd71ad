package gateway

// Settings holds what the default registry needs from configuration.
type Settings struct {
	Paystack    Credentials
	Flutterwave Credentials
	Crypto      Credentials
	CODEnabled  bool
	Client      ClientOptions
}

// NewDefaultRegistry registers every built-in gateway. Instances are built on
// first use; unconfigured gateways stay registered but report unavailable.
func NewDefaultRegistry(s Settings) *Registry {
	r := NewRegistry()
	r.Register(PaystackID, func() (Gateway, error) {
		return NewPaystack(s.Paystack, s.Client), nil
	})
	r.Register(FlutterwaveID, func() (Gateway, error) {
		return NewFlutterwave(s.Flutterwave, s.Client), nil
	})
	r.Register(CryptoID, func() (Gateway, error) {
		return NewCrypto(s.Crypto, s.Client), nil
	})
	r.Register(CODID, func() (Gateway, error) {
		return NewCashOnDelivery(s.CODEnabled), nil
	})
	return r
}
