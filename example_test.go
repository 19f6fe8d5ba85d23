package httpcore

import (
	"fmt"

	"github.com/frameloop/httpcore/internal/nettransport"
)

func ExampleTransport() {
	config := NewLayerConfig()
	config.SetDefaultTransportFactory(&nettransport.Factory{})

	transport, err := config.NewDefaultTransport()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer transport.Shutdown()

	request := transport.NewRequest("GET")
	request.SetURL("http://www.google.com/?a=b")
	if err := request.Execute(); err != nil {
		fmt.Println(err)
		return
	}
	body, _ := request.Response().GetBodyString()
	fmt.Println(body)
}
