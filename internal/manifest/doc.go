// Package manifest reads and validates the root service manifest.
//
// A manifest names the service, its environments and its components:
//
//	apiVersion: keel.io/v1
//	kind: Service
//	service: payments
//	owner: team-payments
//	complianceFramework: pci
//	environments:
//	  dev:
//	    $ref: ./envs/dev.yml
//	  prod:
//	    defaults:
//	      region: us-east-1
//	components:
//	  - name: api
//	    type: service
//	    config:
//	      replicas: 2
//	    overrides:
//	      prod:
//	        replicas: 6
//
// Components may also be written as a map keyed by name. The environments
// block is left exactly as written; resolving its references is the job of
// the reference package.
package manifest
