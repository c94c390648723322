// Package quirks loads the dock model database.
//
// Which hubs are docks, what the devices behind them are called and which
// of them bridge a high-speed link is hardware knowledge, not code. It lives
// in a YAML file keyed by USB vendor and product id:
//
//	docks:
//	  - vendor_id: 0x413c
//	    product_id: 0xb06e
//	    model: "WD19TB"
//	    hub:
//	      flags: [has-bridge]
//	    controller:
//	      name: "WD19TB Embedded Controller"
//	      flags: [has-bridge]
//	    link_endpoint:
//	      name: "WD19TB Thunderbolt Controller"
//
// A Database implements dock.QuirkSource.
package quirks
